//go:build linux

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

// newSysfsTree lays out a fake gpio class directory. When exported is true
// gpio n already has its attribute files.
func newSysfsTree(t *testing.T, n int, value string, exported bool) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"export", "unexport"} {
		if err := os.WriteFile(filepath.Join(root, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if !exported {
		return root
	}
	dir := filepath.Join(root, "gpio"+strconv.Itoa(n))
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Attribute writes do not truncate, as on sysfs, so start them empty.
	for name, content := range map[string]string{"direction": "", "edge": "", "value": value} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func readAttr(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestSysfsDriver_OpenConfiguresAndCloseReleases(t *testing.T) {
	root := newSysfsTree(t, 535, "1\n", true)
	d := &sysfsDriver{root: root, base: 512}

	pin, err := d.Open(23, BothEdges)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if pin.String() != "gpio535" {
		t.Errorf("unexpected pin name %q", pin.String())
	}
	if got := readAttr(t, d.attr(535, "direction")); got != "in" {
		t.Errorf("direction = %q, want in", got)
	}
	if got := readAttr(t, d.attr(535, "edge")); got != BothEdges.String() {
		t.Errorf("edge = %q, want %q", got, BothEdges.String())
	}
	if got := readAttr(t, filepath.Join(root, "export")); got != "" {
		t.Errorf("already exported pin was exported again: %q", got)
	}

	level, err := pin.Read()
	if err != nil || level != High {
		t.Fatalf("Read = %v, %v; want High", level, err)
	}

	if err := pin.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := readAttr(t, d.attr(535, "edge")); got != "none" {
		t.Errorf("edge after close = %q, want none", got)
	}
	if got := readAttr(t, filepath.Join(root, "unexport")); got != "535" {
		t.Errorf("unexport = %q, want 535", got)
	}
}

func TestSysfsDriver_ExportFailureCleansUp(t *testing.T) {
	// Export is written but the kernel never creates gpio24's directory.
	root := newSysfsTree(t, 24, "", false)
	d := &sysfsDriver{root: root}

	if _, err := d.Open(24, FallingEdge); err == nil {
		t.Fatal("expected Open to fail without attribute files")
	}
	if got := readAttr(t, filepath.Join(root, "export")); got != "24" {
		t.Errorf("export = %q, want 24", got)
	}
	if got := readAttr(t, filepath.Join(root, "unexport")); got != "24" {
		t.Errorf("unexport = %q, want 24", got)
	}
}

func TestSysfsDriver_WaitWritableTimesOut(t *testing.T) {
	root := newSysfsTree(t, 12, "", false)
	d := &sysfsDriver{root: root, waitWritable: true}

	start := time.Now()
	err := d.ensureExported(12)
	if err == nil || !strings.Contains(err.Error(), "not writable") {
		t.Fatalf("expected permission timeout, got %v", err)
	}
	if time.Since(start) < sysfsPermissionWait {
		t.Fatal("gave up before the permission wait elapsed")
	}
}

func TestSysfsPin_BadValueAndHalt(t *testing.T) {
	root := newSysfsTree(t, 5, "x", true)
	d := &sysfsDriver{root: root}

	if _, err := d.Open(5, BothEdges); err == nil {
		t.Fatal("expected Open to reject an unreadable value")
	}

	if err := os.WriteFile(d.attr(5, "value"), []byte("0"), 0o644); err != nil {
		t.Fatal(err)
	}
	pin, err := d.Open(5, BothEdges)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pin.Close()

	pin.Halt()
	if ok, err := pin.WaitForEdge(time.Second); ok || err != nil {
		t.Fatalf("WaitForEdge after Halt = %v, %v; want false, nil", ok, err)
	}
}
