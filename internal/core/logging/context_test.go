package logging

import (
	"context"
	"testing"
)

func TestWithContextID(t *testing.T) {
	ctx := WithContextID(context.Background(), "ann")
	if got := GetContextID(ctx); got != "ann" {
		t.Errorf("GetContextID() = %q, want %q", got, "ann")
	}
}

func TestWithPackageID(t *testing.T) {
	ctx := WithPackageID(context.Background(), "acme@1.0")
	if got := GetPackageID(ctx); got != "acme@1.0" {
		t.Errorf("GetPackageID() = %q, want %q", got, "acme@1.0")
	}
}

func TestGetContextID_NotPresent(t *testing.T) {
	if got := GetContextID(context.Background()); got != "" {
		t.Errorf("GetContextID() = %q, want empty string", got)
	}
}
