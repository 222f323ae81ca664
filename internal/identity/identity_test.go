package identity

import (
	"strconv"
	"testing"
)

// TestPrefixDeterministic verifies that Prefix is byte-identical across two
// invocations with the same inputs (testable property 1).
func TestPrefixDeterministic(t *testing.T) {
	a := Prefix("host-a", "dir/a.txt")
	b := Prefix("host-a", "dir/a.txt")
	if a != b {
		t.Fatalf("Prefix not deterministic: %q != %q", a, b)
	}
	if len(a) != 40 {
		t.Fatalf("Prefix length = %d, want 40", len(a))
	}
}

// TestPrefixCollidesAcrossMtime verifies invariant 2: two files at the same
// relative path on the same host collide in Prefix regardless of content or
// time.
func TestPrefixCollidesAcrossMtime(t *testing.T) {
	prefix := Prefix("host-a", "a.txt")
	early := FileID("host-a", "a.txt", 1000, true)
	late := FileID("host-a", "a.txt", 2000, true)
	if early[:len(prefix)] != prefix || late[:len(prefix)] != prefix {
		t.Fatal("identical (host, path) pairs must collide in Prefix")
	}
}

// TestPrefixDiffersByHost verifies that the host forms part of the identity,
// which is what keeps the two hosts' _id spaces disjoint (§5).
func TestPrefixDiffersByHost(t *testing.T) {
	if Prefix("host-a", "a.txt") == Prefix("host-b", "a.txt") {
		t.Fatal("Prefix must differ across hosts for the same path")
	}
}

// TestFileIDDeterministic verifies that FileID is byte-identical across two
// invocations with identical mtime (testable property 1).
func TestFileIDDeterministic(t *testing.T) {
	a := FileID("host-a", "a.txt", 1000, true)
	b := FileID("host-a", "a.txt", 1000, true)
	if a != b {
		t.Fatalf("FileID not deterministic: %q != %q", a, b)
	}
}

// TestFileIDChangesWithMtime verifies that a changed mtime produces a new
// _id while the prefix (and thus the path identity) stays constant.
func TestFileIDChangesWithMtime(t *testing.T) {
	original := FileID("host-a", "a.txt", 1000, true)
	touched := FileID("host-a", "a.txt", 2000, true)
	if original == touched {
		t.Fatal("FileID must change when mtime changes")
	}
	prefix := Prefix("host-a", "a.txt")
	if original != prefix+strconv.FormatInt(1000, 10) {
		t.Fatalf("FileID = %q, want prefix + mtime suffix", original)
	}
	if touched != prefix+strconv.FormatInt(2000, 10) {
		t.Fatalf("FileID = %q, want prefix + mtime suffix", touched)
	}
}

// TestFileIDUnstatable verifies the §4.6 edge case: a file whose mtime could
// not be read is stored with the bare prefix, deduplicating repeat entries.
func TestFileIDUnstatable(t *testing.T) {
	id := FileID("host-a", "a.txt", 0, false)
	if id != Prefix("host-a", "a.txt") {
		t.Fatalf("FileID for unstatable file = %q, want bare prefix", id)
	}
}

// TestFileIDEncodingError verifies the §4.6 edge case: a path that cannot be
// UTF-8 round-tripped produces the literal "-ERROR" suffix.
func TestFileIDEncodingError(t *testing.T) {
	invalid := string([]byte{0xff, 0xfe, 0xfd})
	id := FileID("host-a", invalid, 1000, true)
	want := Prefix("host-a", invalid) + errorSuffix
	if id != want {
		t.Fatalf("FileID for invalid UTF-8 path = %q, want %q", id, want)
	}
	if IsPathEncodable(invalid) {
		t.Fatal("expected invalid UTF-8 path to be reported as unencodable")
	}
}

// TestCrossHostJoin verifies testable property 2: for a source file S and
// target file T with the same syncpath, T's syncIDprefix equals S's
// IDprefix, computed here directly via Prefix using each host's id and root.
func TestCrossHostJoin(t *testing.T) {
	const sourceHost = "host-source"
	const targetHost = "host-target"
	const syncPath = "dir/report.csv"

	sourceIDPrefix := Prefix(sourceHost, syncPath)
	targetSyncIDPrefix := Prefix(sourceHost, syncPath) // computed by target using peer's host id

	if targetSyncIDPrefix != sourceIDPrefix {
		t.Fatal("target's syncIDprefix must equal source's IDprefix for the same syncpath")
	}

	targetIDPrefix := Prefix(targetHost, syncPath)
	sourceSyncIDPrefix := Prefix(targetHost, syncPath)
	if sourceSyncIDPrefix != targetIDPrefix {
		t.Fatal("source's syncIDprefix must equal target's IDprefix for the same syncpath")
	}
}
