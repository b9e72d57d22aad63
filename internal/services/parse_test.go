package services

import (
	"errors"
	"testing"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

func TestParseCommand(t *testing.T) {
	cmd := func(off, n int) []domain.Entity {
		return []domain.Entity{{Type: domain.EntityBotCommand, Offset: off, Length: n}}
	}
	cases := []struct {
		name   string
		u      *domain.Update
		want   string
		wantOK bool
	}{
		{"nil", nil, "", false},
		{"empty", &domain.Update{}, "", false},
		{"plain", &domain.Update{Text: "/start", Entities: cmd(0, 6)}, "start", true},
		{"trailing args", &domain.Update{Text: "/notify now", Entities: cmd(0, 7)}, "notify", true},
		{"botname", &domain.Update{Text: "/start@MyBot", Entities: cmd(0, 12)}, "start", true},
		{"case folded", &domain.Update{Text: "/REGISTER", Entities: cmd(0, 9)}, "register", true},
		{"not leading", &domain.Update{Text: "hi /start", Entities: cmd(3, 6)}, "", false},
		{"other entity", &domain.Update{Text: "/x", Entities: []domain.Entity{{Type: "bold", Offset: 0, Length: 2}}}, "", false},
		{"no entities fallback", &domain.Update{Text: "/start please"}, "start", true},
		{"no marker", &domain.Update{Text: "start"}, "", false},
		{"bare slash", &domain.Update{Text: "/", Entities: cmd(0, 1)}, "", false},
		{"out of range", &domain.Update{Text: "/a", Entities: cmd(0, 9)}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseCommand(tc.u)
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("ParseCommand=%q,%v want %q,%v", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestParseCommand_UTF16Offsets(t *testing.T) {
	// "😀" is two UTF-16 code units but one rune and four bytes.
	u := &domain.Update{
		Text:     "/hi 😀",
		Entities: []domain.Entity{{Type: domain.EntityBotCommand, Offset: 0, Length: 3}},
	}
	if got, ok := ParseCommand(u); !ok || got != "hi" {
		t.Fatalf("got %q,%v", got, ok)
	}

	if got := utf16Slice("😀/go", 2, 3); got != "/go" {
		t.Fatalf("utf16Slice after surrogate pair = %q", got)
	}
}

func TestDecodeCallback(t *testing.T) {
	cases := []struct {
		data   string
		want   string
		wantOK bool
	}{
		{`{"command":"notify"}`, "notify", true},
		{`{"command":"/notify","choice":"1"}`, "notify", true},
		{`{"choice":1}`, "", true},
		{`{"command":42}`, "42", true},
		{`not json`, "", false},
		{`null`, "", false},
		{`"notify"`, "", false},
	}
	for _, tc := range cases {
		p, ok := DecodeCallback(tc.data)
		if ok != tc.wantOK || p.Command != tc.want {
			t.Fatalf("DecodeCallback(%q)=%+v,%v want %q,%v", tc.data, p, ok, tc.want, tc.wantOK)
		}
	}
}

func TestCatalogs(t *testing.T) {
	h := (&scripted{}).factory()
	c := NewCommandCatalog()
	if err := c.Register(domain.CommandDescriptor{ID: "start"}, h); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := c.Register(domain.CommandDescriptor{ID: "notify", Permission: "subscribe"}, h); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := c.Register(domain.CommandDescriptor{ID: "START"}, h); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if err := c.Register(domain.CommandDescriptor{ID: "  "}, h); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("expected ErrEmptyID, got %v", err)
	}
	if err := c.Register(domain.CommandDescriptor{ID: "x"}, nil); !errors.Is(err, ErrNilFactory) {
		t.Fatalf("expected ErrNilFactory, got %v", err)
	}
	if !c.Has("Notify") || c.Has("missing") {
		t.Fatalf("Has mismatch")
	}
	if d, ok := c.Get("notify"); !ok || d.Permission != "subscribe" {
		t.Fatalf("Get mismatch: %+v %v", d, ok)
	}
	all := c.All()
	if len(all) != 2 || all[0].ID != "start" || all[1].ID != "notify" {
		t.Fatalf("All must keep registration order, got %+v", all)
	}

	n := NewNotifierCatalog()
	nf := func([]int64, any) Notifier { return nil }
	n.MustRegister(domain.NotifierDescriptor{ID: "b"}, nf)
	n.MustRegister(domain.NotifierDescriptor{ID: "a", Label: "Alpha"}, nf)
	nall := n.All()
	if len(nall) != 2 || nall[0].ID != "b" || nall[0].Label != "b" || nall[1].Label != "Alpha" {
		t.Fatalf("unexpected notifier order/labels: %+v", nall)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("MustRegister must panic on duplicate")
		}
	}()
	n.MustRegister(domain.NotifierDescriptor{ID: "a"}, nf)
}
