// Package browsertest содержит управляемые in-memory реализации browser.Page
// и browser.Provider для тестов.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/shaiso/Harvester/internal/browser"
)

// NavigateCall — запись одного вызова Navigate.
type NavigateCall struct {
	URL    string
	Params browser.NavigateParams
}

// Page — сценарная страница.
//
// NavigateErrs задаёт исход попыток по порядку (nil — успех; попытки сверх
// списка успешны). Titles и Contents — последовательные значения чтений;
// последнее значение повторяется.
type Page struct {
	NavigateErrs []error
	FinalURL     string
	Titles       []string
	Contents     []string

	// EvalFunc отвечает на Evaluate; результат кодируется в out через JSON.
	EvalFunc func(script string) (any, error)

	// NavigateHook вызывается в начале Navigate (например, чтобы ждать ctx).
	NavigateHook func(ctx context.Context, call NavigateCall) error

	mu          sync.Mutex
	navigations []NavigateCall
	titleReads  int
	contentRead int
	location    string
	released    int
}

var _ browser.Page = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string, params browser.NavigateParams) (string, error) {
	call := NavigateCall{URL: url, Params: params}

	p.mu.Lock()
	attempt := len(p.navigations)
	p.navigations = append(p.navigations, call)
	hook := p.NavigateHook
	p.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, call); err != nil {
			return "", err
		}
	}

	if attempt < len(p.NavigateErrs) && p.NavigateErrs[attempt] != nil {
		return "", p.NavigateErrs[attempt]
	}

	final := p.FinalURL
	if final == "" {
		final = url
	}

	p.mu.Lock()
	p.location = final
	p.mu.Unlock()

	return final, nil
}

func (p *Page) Title(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := pick(p.Titles, p.titleReads)
	p.titleReads++
	return v, nil
}

func (p *Page) Content(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := pick(p.Contents, p.contentRead)
	p.contentRead++
	return v, nil
}

func (p *Page) Location(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

func (p *Page) Evaluate(_ context.Context, script string, out any) error {
	if p.EvalFunc == nil {
		return errors.New("browsertest: evaluate not configured")
	}

	v, err := p.EvalFunc(script)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (p *Page) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
}

// Navigations возвращает копию записанных вызовов Navigate.
func (p *Page) Navigations() []NavigateCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]NavigateCall(nil), p.navigations...)
}

// Released возвращает число вызовов Release.
func (p *Page) Released() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// TitleReads возвращает число чтений title.
func (p *Page) TitleReads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.titleReads
}

func pick(values []string, i int) string {
	if len(values) == 0 {
		return ""
	}
	if i >= len(values) {
		return values[len(values)-1]
	}
	return values[i]
}

// Provider выдаёт страницы из NewPage.
type Provider struct {
	NewPage    func(kind string) *Page
	AcquireErr error

	mu    sync.Mutex
	pages []*Page
	kinds []string
}

var _ browser.Provider = (*Provider)(nil)

// NewProvider создаёт провайдер, выдающий новую страницу из factory на каждый Acquire.
func NewProvider(factory func(kind string) *Page) *Provider {
	return &Provider{NewPage: factory}
}

func (p *Provider) Acquire(_ context.Context, kind string) (browser.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.kinds = append(p.kinds, kind)
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}

	var page *Page
	if p.NewPage != nil {
		page = p.NewPage(kind)
	}
	if page == nil {
		page = &Page{}
	}
	p.pages = append(p.pages, page)
	return page, nil
}

// Pages возвращает выданные страницы.
func (p *Provider) Pages() []*Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Page(nil), p.pages...)
}

// Acquired возвращает число вызовов Acquire.
func (p *Provider) Acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.kinds)
}
