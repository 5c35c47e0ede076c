package main

import (
	"testing"

	"scribe/internal/logging"
	"scribe/internal/testsupport"
)

func TestBuildDaemonWithoutMonitor(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	store := testsupport.MustOpenStore(t, cfg)

	d, err := buildDaemon(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("buildDaemon: %v", err)
	}
	if d.Monitor() != nil {
		t.Fatal("expected no monitor without folder id")
	}
}

func TestBuildDaemonWithMonitor(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI(), testsupport.WithFolderID("folder-1"))
	store := testsupport.MustOpenStore(t, cfg)

	d, err := buildDaemon(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("buildDaemon: %v", err)
	}
	if d.Monitor() == nil {
		t.Fatal("expected monitor when folder id configured")
	}
}
