package hitl

import (
	"context"
	"errors"
)

// Fanout 依次发送给每个 Sender，任一成功即视为投递成功；全部失败时返回合并的错误.
// nil 元素会被忽略，只剩一个时直接返回它.
func Fanout(senders ...Sender) Sender {
	live := make([]Sender, 0, len(senders))
	for _, s := range senders {
		if s != nil {
			live = append(live, s)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return fanout(live)
}

type fanout []Sender

func (f fanout) Send(ctx context.Context, msg OutboundMessage) error {
	var errs []error
	delivered := false
	for _, s := range f {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	return errors.Join(errs...)
}
