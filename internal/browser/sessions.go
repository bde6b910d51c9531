package browser

import (
	"context"
	"fmt"
	"sync"
)

// OpenFunc открывает новую страницу для kind.
type OpenFunc func(ctx context.Context, kind string) (Page, error)

// SessionRegistry держит по одной долгоживущей странице на kind
// и выдаёт её эксклюзивно.
type SessionRegistry struct {
	open OpenFunc

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	done     chan struct{}
}

type session struct {
	// slot — токен владения: буфер 1, пуст, пока страница выдана.
	slot chan struct{}
	// page защищён mu реестра.
	page Page
}

// NewSessionRegistry создаёт реестр; open вызывается лениво при первом Acquire.
func NewSessionRegistry(open OpenFunc) *SessionRegistry {
	return &SessionRegistry{
		open:     open,
		sessions: make(map[string]*session),
		done:     make(chan struct{}),
	}
}

// Acquire возвращает страницу kind. Если она занята — ждёт Release,
// закрытия реестра или отмены ctx.
func (r *SessionRegistry) Acquire(ctx context.Context, kind string) (Page, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrProviderClosed
	}
	s, ok := r.sessions[kind]
	if !ok {
		s = &session{slot: make(chan struct{}, 1)}
		s.slot <- struct{}{}
		r.sessions[kind] = s
	}
	r.mu.Unlock()

	select {
	case <-s.slot:
	case <-r.done:
		return nil, ErrProviderClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, kind)
	}

	r.mu.Lock()
	page, closed := s.page, r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrProviderClosed
	}

	if page == nil {
		opened, err := r.open(ctx, kind)
		if err != nil {
			s.slot <- struct{}{}
			return nil, fmt.Errorf("open session %s: %w", kind, err)
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			opened.Release()
			return nil, ErrProviderClosed
		}
		s.page = opened
		r.mu.Unlock()
		page = opened
	}

	return &sessionPage{Page: page, registry: r, session: s}, nil
}

// Close закрывает все страницы. Занятые страницы закрываются без ожидания,
// ожидающие Acquire получают ErrProviderClosed.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	close(r.done)
	for kind, s := range r.sessions {
		if s.page != nil {
			s.page.Release()
			s.page = nil
		}
		delete(r.sessions, kind)
	}
}

// Discarder реализуют страницы, которые можно выбросить вместо возврата:
// следующий Acquire того же kind откроет новую страницу.
type Discarder interface {
	Discard()
}

// sessionPage возвращает токен вместо закрытия страницы.
type sessionPage struct {
	Page
	registry *SessionRegistry
	session  *session
	once     sync.Once
}

func (p *sessionPage) Release() {
	p.once.Do(func() {
		p.session.slot <- struct{}{}
	})
}

// Discard закрывает страницу сессии и освобождает слот.
func (p *sessionPage) Discard() {
	p.once.Do(func() {
		p.registry.mu.Lock()
		if p.session.page == p.Page {
			p.session.page = nil
			p.Page.Release()
		}
		p.registry.mu.Unlock()
		p.session.slot <- struct{}{}
	})
}
