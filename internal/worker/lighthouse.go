package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/shaiso/Harvester/internal/browser"
	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/telemetry"
)

// Значения по умолчанию для LighthouseStrategy.
const (
	DefaultLighthouseBaseURL = "https://pagespeed.web.dev/analysis"
	DefaultLighthouseTimeout = 90 * time.Second
	defaultReportPoll        = 2 * time.Second
)

// Form factors отчёта.
const (
	FormFactorMobile  = "mobile"
	FormFactorDesktop = "desktop"
)

// reportScript читает отчёт со страницы анализа. ready = true,
// когда отрисован хотя бы gauge performance.
const reportScript = `(() => {
  const num = (el) => {
    if (!el) return null;
    const v = parseFloat(el.textContent);
    return isNaN(v) ? null : v;
  };
  const score = (id) => num(document.querySelector(
    '.lh-category#' + id + ' .lh-gauge__percentage, a.lh-gauge__wrapper[href="#' + id + '"] .lh-gauge__percentage'));
  const metric = (id) => {
    const el = document.querySelector('#' + id + ' .lh-metric__value, [data-metric-id="' + id + '"] .lh-metric__value');
    return el ? el.textContent.trim() : null;
  };
  const nav = performance.getEntriesByType('navigation')[0];
  const scores = {
    performance: score('performance'),
    accessibility: score('accessibility'),
    best_practices: score('best-practices'),
    seo: score('seo'),
  };
  return {
    ready: scores.performance !== null,
    scores: scores,
    web_vitals: {
      largest_contentful_paint: metric('largest-contentful-paint'),
      first_contentful_paint: metric('first-contentful-paint'),
      cumulative_layout_shift: metric('cumulative-layout-shift'),
      total_blocking_time: metric('total-blocking-time'),
      speed_index: metric('speed-index'),
    },
    timing: nav ? {
      dom_content_loaded_ms: Math.round(nav.domContentLoadedEventEnd),
      load_ms: Math.round(nav.loadEventEnd),
      ttfb_ms: Math.round(nav.responseStart),
    } : null,
  };
})()`

// CategoryScores — оценки категорий (0..100); nil, если недоступны.
type CategoryScores struct {
	Performance   *float64 `json:"performance"`
	Accessibility *float64 `json:"accessibility"`
	BestPractices *float64 `json:"best_practices"`
	SEO           *float64 `json:"seo"`
}

// WebVitals — оценки core web vitals в виде, в котором их показывает отчёт.
type WebVitals struct {
	LargestContentfulPaint *string `json:"largest_contentful_paint"`
	FirstContentfulPaint   *string `json:"first_contentful_paint"`
	CumulativeLayoutShift  *string `json:"cumulative_layout_shift"`
	TotalBlockingTime      *string `json:"total_blocking_time"`
	SpeedIndex             *string `json:"speed_index"`
}

// ReportTiming — тайминги загрузки страницы отчёта.
type ReportTiming struct {
	DOMContentLoadedMs *float64 `json:"dom_content_loaded_ms"`
	LoadMs             *float64 `json:"load_ms"`
	TTFBMs             *float64 `json:"ttfb_ms"`
}

// FormFactorReport — отчёт для одного form factor.
type FormFactorReport struct {
	FormFactor string         `json:"form_factor"`
	Scores     CategoryScores `json:"scores"`
	WebVitals  WebVitals      `json:"web_vitals"`
	Timing     *ReportTiming  `json:"timing"`
	ReportURL  string         `json:"report_url"`
	Error      string         `json:"error,omitempty"`

	reached bool
	navErr  error
}

type reportSnapshot struct {
	Ready     bool           `json:"ready"`
	Scores    CategoryScores `json:"scores"`
	WebVitals WebVitals      `json:"web_vitals"`
	Timing    *ReportTiming  `json:"timing"`
}

// LighthouseStrategy — lighthouse_html: отчёт о производительности
// для mobile и desktop. Каждая сторона независима: ошибка одной
// даёт nil-оценки только для неё. Task неуспешна, только если страница
// отчёта не открылась ни для одного form factor.
type LighthouseStrategy struct {
	Navigator *browser.Navigator
	BaseURL   string
	Timeout   time.Duration
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger

	// PollInterval — период опроса отрисовки отчёта.
	PollInterval time.Duration

	// Sleep подменяется в тестах.
	Sleep func(ctx context.Context, d time.Duration) error
}

var _ Strategy = (*LighthouseStrategy)(nil)

// ReportURL строит адрес страницы анализа для target.
func (s *LighthouseStrategy) ReportURL(target, formFactor string) string {
	base := s.BaseURL
	if base == "" {
		base = DefaultLighthouseBaseURL
	}
	q := url.Values{}
	q.Set("url", target)
	q.Set("form_factor", formFactor)
	return base + "?" + q.Encode()
}

func (s *LighthouseStrategy) Execute(ctx context.Context, page browser.Page, task *domain.Task) (map[string]any, error) {
	mobile := s.runFormFactor(ctx, page, task, FormFactorMobile)
	desktop := s.runFormFactor(ctx, page, task, FormFactorDesktop)

	result, err := toMap(map[string]any{
		"url":             task.URL,
		FormFactorMobile:  mobile,
		FormFactorDesktop: desktop,
	})
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	if !mobile.reached && !desktop.reached {
		return result, fmt.Errorf("%w: mobile: %w; desktop: %w", ErrReportUnreachable, mobile.navErr, desktop.navErr)
	}
	return result, nil
}

// runFormFactor открывает отчёт и ждёт его отрисовки не дольше Timeout.
func (s *LighthouseStrategy) runFormFactor(ctx context.Context, page browser.Page, task *domain.Task, formFactor string) *FormFactorReport {
	report := &FormFactorReport{
		FormFactor: formFactor,
		ReportURL:  s.ReportURL(task.URL, formFactor),
	}

	timeout := payloadMillis(task.Payload, "timeout_ms", s.timeout())
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	nav := navigate(ctx, s.Navigator, s.Metrics, page, report.ReportURL, browser.NavigateOptions{
		BaseTimeout: timeout,
		Strategy:    browser.WaitLoad,
	})
	if err := nav.Error(); err != nil {
		report.Error = err.Error()
		report.navErr = err
		s.logger().Warn("report page unreachable",
			"task_id", task.ID,
			"form_factor", formFactor,
			"error", err,
		)
		return report
	}
	report.reached = true
	if nav.FinalURL != "" {
		report.ReportURL = nav.FinalURL
	}

	snapshot, err := s.waitReport(ctx, page)
	if snapshot != nil {
		report.Scores = snapshot.Scores
		report.WebVitals = snapshot.WebVitals
		report.Timing = snapshot.Timing
	}
	if err != nil {
		report.Error = err.Error()
		s.logger().Warn("report extraction incomplete",
			"task_id", task.ID,
			"form_factor", formFactor,
			"error", err,
		)
	}
	return report
}

// waitReport опрашивает страницу, пока отчёт не будет готов или ctx не истечёт.
// Возвращает последний прочитанный снимок.
func (s *LighthouseStrategy) waitReport(ctx context.Context, page browser.Page) (*reportSnapshot, error) {
	var last *reportSnapshot
	for {
		var snap reportSnapshot
		err := page.Evaluate(ctx, reportScript, &snap)
		if err == nil {
			last = &snap
			if snap.Ready {
				return last, nil
			}
		}

		if sleepErr := s.sleep(ctx, s.pollInterval()); sleepErr != nil {
			if err == nil {
				err = errors.New("report not rendered before timeout")
			}
			return last, err
		}
	}
}

func (s *LighthouseStrategy) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultLighthouseTimeout
}

func (s *LighthouseStrategy) pollInterval() time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return defaultReportPoll
}

func (s *LighthouseStrategy) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *LighthouseStrategy) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// toMap приводит значение к map[string]any через JSON.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
