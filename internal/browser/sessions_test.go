package browser_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Harvester/internal/browser"
	"github.com/shaiso/Harvester/internal/browser/browsertest"
)

// --- SessionRegistry Tests ---

func TestSessionRegistry_ReusesPage(t *testing.T) {
	var opened atomic.Int32
	reg := browser.NewSessionRegistry(func(ctx context.Context, kind string) (browser.Page, error) {
		opened.Add(1)
		return &browsertest.Page{}, nil
	})
	defer reg.Close()

	for range 3 {
		page, err := reg.Acquire(context.Background(), "lighthouse_html")
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		page.Release()
	}

	if got := opened.Load(); got != 1 {
		t.Errorf("expected page opened once, got %d", got)
	}
}

func TestSessionRegistry_Exclusive(t *testing.T) {
	reg := browser.NewSessionRegistry(func(ctx context.Context, kind string) (browser.Page, error) {
		return &browsertest.Page{}, nil
	})
	defer reg.Close()

	first, err := reg.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := reg.Acquire(ctx, "k"); !errors.Is(err, browser.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}

	// Другой kind не блокируется.
	other, err := reg.Acquire(context.Background(), "other")
	if err != nil {
		t.Fatalf("acquire other: %v", err)
	}
	other.Release()

	acquired := make(chan struct{})
	go func() {
		page, err := reg.Acquire(context.Background(), "k")
		if err == nil {
			page.Release()
		}
		close(acquired)
	}()

	first.Release()
	first.Release() // повторный Release безопасен

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiting acquire was not unblocked by release")
	}
}

func TestSessionRegistry_OpenErrorFreesSlot(t *testing.T) {
	var calls atomic.Int32
	reg := browser.NewSessionRegistry(func(ctx context.Context, kind string) (browser.Page, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("chrome crashed")
		}
		return &browsertest.Page{}, nil
	})
	defer reg.Close()

	if _, err := reg.Acquire(context.Background(), "k"); err == nil {
		t.Fatal("expected open error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	page, err := reg.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	page.Release()
}

func TestSessionRegistry_Closed(t *testing.T) {
	inner := &browsertest.Page{}
	reg := browser.NewSessionRegistry(func(ctx context.Context, kind string) (browser.Page, error) {
		return inner, nil
	})

	page, err := reg.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	page.Release()
	if inner.Released() != 0 {
		t.Error("session release must not close the underlying page")
	}

	reg.Close()
	if inner.Released() != 1 {
		t.Errorf("expected underlying page closed once, got %d", inner.Released())
	}
	if _, err := reg.Acquire(context.Background(), "k"); !errors.Is(err, browser.ErrProviderClosed) {
		t.Errorf("expected ErrProviderClosed, got %v", err)
	}
}

func TestSessionRegistry_DiscardOpensFreshPage(t *testing.T) {
	var opened []*browsertest.Page
	reg := browser.NewSessionRegistry(func(ctx context.Context, kind string) (browser.Page, error) {
		page := &browsertest.Page{}
		opened = append(opened, page)
		return page, nil
	})
	defer reg.Close()

	page, err := reg.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	d, ok := page.(browser.Discarder)
	if !ok {
		t.Fatal("session page must support Discard")
	}
	d.Discard()
	page.Release() // после Discard — no-op

	if opened[0].Released() != 1 {
		t.Errorf("discarded page must be closed once, got %d", opened[0].Released())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	again, err := reg.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("acquire after discard: %v", err)
	}
	again.Release()
	if len(opened) != 2 {
		t.Errorf("expected a fresh page, opened %d", len(opened))
	}
}

func TestSessionRegistry_CloseUnblocksWaiters(t *testing.T) {
	reg := browser.NewSessionRegistry(func(ctx context.Context, kind string) (browser.Page, error) {
		return &browsertest.Page{}, nil
	})

	held, err := reg.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer held.Release()

	errc := make(chan error, 1)
	go func() {
		_, err := reg.Acquire(context.Background(), "k")
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	reg.Close()
	reg.Close() // повторный Close безопасен

	select {
	case err := <-errc:
		if !errors.Is(err, browser.ErrProviderClosed) {
			t.Errorf("expected ErrProviderClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiting acquire was not unblocked by close")
	}
}

func TestSessionRegistry_CloseDuringOpen(t *testing.T) {
	inner := &browsertest.Page{}
	opening := make(chan struct{})
	proceed := make(chan struct{})
	reg := browser.NewSessionRegistry(func(ctx context.Context, kind string) (browser.Page, error) {
		close(opening)
		<-proceed
		return inner, nil
	})

	errc := make(chan error, 1)
	go func() {
		_, err := reg.Acquire(context.Background(), "k")
		errc <- err
	}()

	<-opening
	reg.Close()
	close(proceed)

	if err := <-errc; !errors.Is(err, browser.ErrProviderClosed) {
		t.Errorf("expected ErrProviderClosed, got %v", err)
	}
	if inner.Released() != 1 {
		t.Errorf("page opened after close must be released, got %d", inner.Released())
	}
}
