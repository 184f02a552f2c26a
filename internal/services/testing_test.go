package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"marketplace-api/internal/events"
	"marketplace-api/internal/storage"
)

type fakeImageStore struct {
	mu      sync.Mutex
	saved   []string
	deleted []string
	failOn  string
}

func (f *fakeImageStore) Save(_ context.Context, file storage.File) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file.Name == f.failOn {
		return "", errors.New("disk full")
	}
	if file.Reader != nil {
		io.Copy(io.Discard, file.Reader)
	}
	ref := "stored-" + file.Name
	f.saved = append(f.saved, ref)
	return ref, nil
}

func (f *fakeImageStore) Delete(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) published() []events.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.OrderEvent(nil), p.events...)
}
