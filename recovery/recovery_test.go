package recovery_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wudi/pdfedit/recovery"
)

func TestRecoveryStrategies(t *testing.T) {
	loc := recovery.Location{Component: "xref", ByteOffset: 120}
	problem := errors.New("missing cross-reference table")

	t.Run("StrictStrategy", func(t *testing.T) {
		got := recovery.NewStrictStrategy().OnError(context.Background(), problem, loc)
		if got != recovery.ActionFail {
			t.Fatalf("expected fail, got %s", got)
		}
	})

	t.Run("LenientStrategy", func(t *testing.T) {
		rec := recovery.NewLenientStrategy()
		if got := rec.OnError(context.Background(), problem, loc); got != recovery.ActionFix {
			t.Fatalf("expected fix, got %s", got)
		}
		errs := rec.Errors()
		if len(errs) != 1 {
			t.Fatalf("expected 1 recorded error, got %d", len(errs))
		}
		if !errors.Is(errs[0], problem) {
			t.Errorf("recorded error should wrap the original")
		}
		if !strings.Contains(errs[0].Error(), "[xref] offset 120") {
			t.Errorf("unexpected message %q", errs[0])
		}
	})
}
