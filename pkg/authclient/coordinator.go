package authclient

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RefreshFunc выполняет один вызов обновления сессии.
type RefreshFunc func(ctx context.Context) error

// Coordinator сводит конкурентные попытки обновления сессии к одному вызову.
//
// Первый вызвавший Refresh становится ведущим и выполняет refresh; все, кто
// пришёл пока refresh в полёте, ждут в очереди и получают тот же результат.
// Очередь разрешается в порядке постановки (FIFO) сразу после завершения refresh.
type Coordinator struct {
	refresh   RefreshFunc
	timeout   time.Duration
	onFailure func(error)

	mu       sync.Mutex
	inFlight bool
	queue    []chan error
}

// NewCoordinator создаёт координатор. timeout ограничивает один refresh;
// onFailure (может быть nil) вызывается один раз на каждый неуспешный цикл.
func NewCoordinator(refresh RefreshFunc, timeout time.Duration, onFailure func(error)) *Coordinator {
	return &Coordinator{
		refresh:   refresh,
		timeout:   timeout,
		onFailure: onFailure,
	}
}

// Refresh запускает refresh или присоединяется к уже идущему.
// ctx вызывающего ограничивает только ожидание: сам refresh выполняется
// на отвязанном от отмены контексте с собственным таймаутом.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight {
		ch := make(chan error, 1)
		c.queue = append(c.queue, ch)
		c.mu.Unlock()

		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.inFlight = true
	c.mu.Unlock()

	return c.lead(ctx)
}

func (c *Coordinator) lead(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("refresh panicked: %v", p)
		}
		c.settle(err)
	}()

	rctx := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(rctx, c.timeout)
		defer cancel()
	}

	return c.refresh(rctx)
}

// settle снимает флаг и разрешает очередь результатом refresh.
func (c *Coordinator) settle(err error) {
	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.inFlight = false
	c.mu.Unlock()

	for _, ch := range queue {
		ch <- err
	}

	if err != nil && c.onFailure != nil {
		c.onFailure(err)
	}
}

// Reset отклоняет всех ожидающих с ErrSessionExpired (например, при logout).
// Идущий refresh не прерывается, но его результат очереди уже не достанется.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, ch := range queue {
		ch <- ErrSessionExpired
	}
}

// pending — число ожидающих в очереди.
func (c *Coordinator) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
