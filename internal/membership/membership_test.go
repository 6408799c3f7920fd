package membership

import (
	"context"
	"errors"
	"testing"

	"wirdbot/internal/model"
	"wirdbot/internal/storage"
	logx "wirdbot/pkg/logx"
)

type fakeChecker map[int64]error // nil = member, errNotMember = not member

var errNotMember = errors.New("not a member")

func (f fakeChecker) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	err, ok := f[chatID]
	if !ok || errors.Is(err, errNotMember) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func TestListGroupsForCaller(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := storage.NewMemory()
	for _, g := range []model.Group{{ChatID: -1, Title: "A"}, {ChatID: -2, Title: "B"}, {ChatID: -3, Title: "C"}, {ChatID: -4, Title: "D"}} {
		if err := reg.RememberGroup(ctx, g); err != nil {
			t.Fatal(err)
		}
	}
	svc := New(reg, fakeChecker{-1: nil, -2: errNotMember, -3: errors.New("api down")}, logx.Nop())

	got, err := svc.ListGroupsForCaller(ctx, 7)
	if err != nil {
		t.Fatalf("ListGroupsForCaller: %v", err)
	}
	if len(got) != 1 || got[0].ChatID != -1 {
		t.Fatalf("groups = %+v", got)
	}
}
