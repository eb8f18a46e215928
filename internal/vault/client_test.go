package vault

import (
	"context"
	"testing"
)

func TestDisabledClientUsesCache(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	if _, err := c.BridgeCredentials(ctx); err == nil {
		t.Fatal("expected error for missing secret")
	}

	err := c.StoreSecret(ctx, "bridge", map[string]interface{}{
		"token":   "tok-1",
		"account": "12345",
	})
	if err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}

	creds, err := c.BridgeCredentials(ctx)
	if err != nil {
		t.Fatalf("BridgeCredentials: %v", err)
	}
	if creds.Token != "tok-1" || creds.Account != "12345" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}

	if err := c.DeleteSecret(ctx, "bridge"); err != nil {
		t.Fatalf("DeleteSecret: %v", err)
	}
	if _, err := c.BridgeCredentials(ctx); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestJWTSecret(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	if err := c.StoreSecret(ctx, "api", map[string]interface{}{"jwt_secret": "s3cr3t"}); err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}
	got, err := c.JWTSecret(ctx)
	if err != nil {
		t.Fatalf("JWTSecret: %v", err)
	}
	if got != "s3cr3t" {
		t.Fatalf("got %q", got)
	}
}
