package blobstore

import (
	"context"
	"sync"
)

// Memory keeps blobs in process. Used by tests and the "memory" driver.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, data []byte) (Handle, error) {
	h := HandleFor(data)
	key, _ := ObjectKey(h)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		m.blobs[key] = append([]byte(nil), data...)
	}
	return h, nil
}

func (m *Memory) PutKey(_ context.Context, key string, data []byte) (Handle, error) {
	h, err := rawHandle(key)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return h, nil
}

func (m *Memory) Get(_ context.Context, h Handle) ([]byte, error) {
	key, err := ObjectKey(h)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) URL(_ context.Context, h Handle) (*string, error) {
	key, err := ObjectKey(h)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.blobs[key]; !ok {
		return nil, nil
	}
	u := "memory://" + key
	return &u, nil
}

func (m *Memory) Delete(_ context.Context, h Handle) error {
	key, err := ObjectKey(h)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *Memory) UploadURL(context.Context, string) (string, error) {
	return "", ErrPresignNotSupported
}

// Len reports how many objects are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
