package notifiers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
	"github.com/tbourn/go-chat-dispatch/internal/services"
)

type recBroadcaster struct {
	id    string
	chats []int64
	msg   domain.OutboundMessage
	calls int
}

func (r *recBroadcaster) Broadcast(_ context.Context, id string, chats []int64, msg domain.OutboundMessage) (int, error) {
	r.calls++
	r.id, r.chats, r.msg = id, chats, msg
	return len(chats), nil
}

func TestRegister_OrderAndPermission(t *testing.T) {
	cat := services.NewNotifierCatalog()
	if err := Register(cat, &recBroadcaster{}, "announce"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	all := cat.All()
	if len(all) != 2 || all[0].ID != HelloID || all[1].ID != AnnouncementID {
		t.Fatalf("unexpected catalog: %+v", all)
	}
	if all[1].Permission != "announce" || all[0].Permission != "" {
		t.Fatalf("unexpected permissions: %+v", all)
	}
	if err := Register(cat, &recBroadcaster{}, ""); !errors.Is(err, services.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if err := Register(nil, &recBroadcaster{}, ""); err == nil {
		t.Fatalf("nil catalog must fail")
	}
}

func TestHello_SendsToEverySubscriber(t *testing.T) {
	b := &recBroadcaster{}
	if err := Hello(b)([]int64{1, 2}, nil).Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if b.id != HelloID || len(b.chats) != 2 || b.msg.Text != "Hello" {
		t.Fatalf("unexpected broadcast: %+v", b)
	}
}

func TestHello_NoSubscribersIsNoop(t *testing.T) {
	b := &recBroadcaster{}
	if err := Hello(b)(nil, nil).Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if b.calls != 0 {
		t.Fatalf("no send expected, got %d", b.calls)
	}
}

func TestAnnouncement_Payloads(t *testing.T) {
	cases := []struct {
		name     string
		payload  any
		wantText string
		wantHTML bool
		wantErr  error
	}{
		{"string", "maintenance at 10", "maintenance at 10", false, nil},
		{"map", map[string]any{"text": "<b>new</b>", "html": true}, "<b>new</b>", true, nil},
		{"json bytes", []byte(`{"text":"from json"}`), "from json", false, nil},
		{"raw message", json.RawMessage(`"quoted"`), "quoted", false, nil},
		{"plain bytes", []byte("not json"), "not json", false, nil},
		{"weak html flag", map[string]any{"text": "x", "html": "true"}, "x", true, nil},
		{"empty", "  ", "", false, ErrEmptyAnnouncement},
		{"nil", nil, "", false, ErrEmptyAnnouncement},
		{"missing text", map[string]any{"html": true}, "", false, ErrEmptyAnnouncement},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &recBroadcaster{}
			err := Announcement(b)([]int64{7}, tc.payload).Execute(context.Background())
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if b.calls != 0 {
					t.Fatalf("nothing may be sent on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if b.id != AnnouncementID || b.msg.Text != tc.wantText || b.msg.HTML != tc.wantHTML {
				t.Fatalf("unexpected message: %+v", b.msg)
			}
		})
	}
}

func TestAnnouncement_UndecodablePayload(t *testing.T) {
	b := &recBroadcaster{}
	err := Announcement(b)([]int64{1}, 42).Execute(context.Background())
	if err == nil || b.calls != 0 {
		t.Fatalf("expected decode error without sends, err=%v calls=%d", err, b.calls)
	}
}
