package service

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrInvalidStartTime время старта не задано или не разобрано
	ErrInvalidStartTime = errors.New("invalid start time")
	// ErrSuperseded запуск заменен более новым для того же владельца
	ErrSuperseded = errors.New("route processing superseded by a newer request")
	// ErrSessionNotFound сессия маршрута не найдена или истекла
	ErrSessionNotFound = errors.New("route session not found")
)

type generation struct {
	id     uint64
	cancel context.CancelFunc
}

// Generations выдает владельцу монотонно растущий номер запуска.
// Новый запуск отменяет контекст предыдущего.
type Generations struct {
	mu      sync.Mutex
	current map[string]generation
	next    uint64
}

// NewGenerations создает пустой реестр поколений
func NewGenerations() *Generations {
	return &Generations{current: make(map[string]generation)}
}

// Begin начинает новое поколение для владельца и возвращает производный контекст.
// Вызывающий обязан вызвать Done по завершении.
func (g *Generations) Begin(ctx context.Context, owner string) (context.Context, uint64) {
	runCtx, cancel := context.WithCancel(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.current[owner]; ok {
		prev.cancel()
	}
	g.next++
	g.current[owner] = generation{id: g.next, cancel: cancel}
	return runCtx, g.next
}

// IsCurrent проверяет, что поколение еще актуально
func (g *Generations) IsCurrent(owner string, id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	cur, ok := g.current[owner]
	return ok && cur.id == id
}

// Commit проверяет актуальность поколения перед сохранением результата
func (g *Generations) Commit(owner string, id uint64) error {
	if !g.IsCurrent(owner, id) {
		return ErrSuperseded
	}
	return nil
}

// Done освобождает поколение, если оно все еще текущее
func (g *Generations) Done(owner string, id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.current[owner]; ok && cur.id == id {
		cur.cancel()
		delete(g.current, owner)
	}
}

// Active количество незавершенных запусков
func (g *Generations) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.current)
}
