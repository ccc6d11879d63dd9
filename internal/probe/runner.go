package probe

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/okian/usagedash/pkg/logger"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Run checks service health, issues every case concurrently and writes a
// report table to out. It returns ErrViolations when any case fails.
func Run(ctx context.Context, cfg *Config, now time.Time, out io.Writer) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	report := Report{RunID: uuid.NewString()}
	start := time.Now()
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.String("run", report.RunID))

	c := newClient(cfg)
	if err := c.health(ctx); err != nil {
		return report, err
	}

	cases := BuildCases(cfg, now)
	log.Info(ctx, "starting usage probe",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("cases", len(cases)),
		logger.Int("workers", cfg.Workers))

	report.Results = make([]Result, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, tc := range cases {
		g.Go(func() error {
			res, body := c.usage(gctx, tc)
			if res.Err == nil {
				res.Violations = Verify(tc, body, cfg.TopN)
			}
			report.Results[i] = res
			if cfg.Verbose {
				log.Info(ctx, "case finished",
					logger.String("case", tc.Name),
					logger.String("requestId", res.RequestID),
					logger.Bool("ok", res.OK()),
					logger.Duration("duration", res.Duration))
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	report.Failed = lo.CountBy(report.Results, func(r Result) bool { return !r.OK() })
	if err := writeReport(out, report); err != nil {
		return report, err
	}

	log.Info(ctx, "usage probe finished",
		logger.Int("cases", len(report.Results)),
		logger.Int("failed", report.Failed),
		logger.Duration("duration", report.Duration))
	if report.Failed > 0 {
		return report, fmt.Errorf("%w: %d of %d cases failed", ErrViolations, report.Failed, len(report.Results))
	}
	return report, nil
}

func writeReport(out io.Writer, report Report) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CASE\tSTATUS\tSOURCE\tGRANULARITY\tPOINTS\tORGS\tDURATION\tRESULT")
	for _, r := range report.Results {
		result := "ok"
		switch {
		case r.Err != nil:
			result = r.Err.Error()
		case len(r.Violations) > 0:
			result = strings.Join(r.Violations, "; ")
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.Case.Name, r.Status, r.Source, r.Granularity, r.Points, r.Orgs,
			r.Duration.Round(time.Millisecond), result)
	}
	return w.Flush()
}
