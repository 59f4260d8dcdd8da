package mapview

import (
	"context"
	"sync"

	"github.com/EmpoweredVote/meresahar/internal/issues"
)

// ImageFetcher resolves one slot's bytes. *issues.ImageService and
// *mapclient.Client both satisfy it.
type ImageFetcher interface {
	FetchImage(ctx context.Context, id int64, slot issues.Slot) ([]byte, error)
}

// SlotEvent reports that one slot settled.
type SlotEvent struct {
	IssueID int64
	Slot    issues.Slot
	State   SlotState
	Err     error
}

// Loader resolves popup images when a popup is opened.
type Loader struct {
	fetcher ImageFetcher
}

func NewLoader(f ImageFetcher) *Loader {
	return &Loader{fetcher: f}
}

// Open starts one fetch per slot still loading. Each goroutine owns its slot
// and moves it to loaded or unavailable, then emits an event; read a slot
// only after its event arrives. The channel closes once every slot settled.
func (l *Loader) Open(ctx context.Context, p *Popup) <-chan SlotEvent {
	events := make(chan SlotEvent, len(p.Slots))

	var wg sync.WaitGroup
	for i := range p.Slots {
		if p.Slots[i].State != SlotLoading {
			continue
		}
		wg.Add(1)
		go func(s *PopupSlot) {
			defer wg.Done()

			data, err := l.fetcher.FetchImage(ctx, p.IssueID, s.Slot)
			if err == nil && len(data) == 0 {
				err = issues.ErrNotFound
			}
			if err != nil {
				s.State = SlotUnavailable
				s.Message = UnavailableText
			} else {
				s.State = SlotLoaded
				s.Message = ""
				s.Data = data
			}
			events <- SlotEvent{IssueID: p.IssueID, Slot: s.Slot, State: s.State, Err: err}
		}(&p.Slots[i])
	}

	go func() {
		wg.Wait()
		close(events)
	}()
	return events
}

// Settle opens the popup and waits for every slot.
func (l *Loader) Settle(ctx context.Context, p *Popup) []SlotEvent {
	var out []SlotEvent
	for ev := range l.Open(ctx, p) {
		out = append(out, ev)
	}
	return out
}
