package snap_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"snapkeep/internal/archive"
	"snapkeep/internal/encryption"
	"snapkeep/internal/snap"
	"snapkeep/internal/testutil"
	"snapkeep/internal/vault"
)

func testDocument(repo, snapshotID string, files map[string]string, previous *string) *snap.SnapshotDocument {
	root := &snap.TreeNode{Name: repo, Kind: snap.KindDirectory, Children: []*snap.TreeNode{}}
	current := snap.FileMap{}
	for name, content := range files {
		root.Children = append(root.Children, &snap.TreeNode{
			Name: name, Kind: snap.KindFile, Path: name, Content: content, Hash: snap.HashContent(content),
		})
		current[name] = snap.FileEntry{Hash: snap.HashContent(content), Content: content}
	}
	return &snap.SnapshotDocument{
		RepositoryName: repo,
		Root:           root,
		ScanMetadata: snap.ScanMetadata{
			Timestamp:          snapshotID,
			Datetime:           "2024-01-15 10:30:00",
			TargetExtensions:   []string{".cs"},
			ScanPath:           "/src/" + repo,
			IsRestorePoint:     previous != nil,
			PreviousSnapshotID: previous,
		},
	}
}

func newTestStore(v snap.Vault, enc snap.Encryptor) *snap.SnapshotStore {
	return snap.NewSnapshotStore(v, enc, archive.Deflate, snap.NewNopLogger())
}

func rawArchive(t *testing.T, v *vault.MemoryVault, repo, id string) *archive.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := v.GetArchive(repo, id, &buf); err != nil {
		t.Fatalf("GetArchive() error = %v", err)
	}
	r, err := archive.NewReader(buf.Bytes())
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	return r
}

func TestSnapshotStore_PersistAndLoad(t *testing.T) {
	for _, method := range []archive.Method{archive.Deflate, archive.Zstd} {
		t.Run(string(method), func(t *testing.T) {
			v := testutil.NewTestVault()
			store := snap.NewSnapshotStore(v, nil, method, snap.NewNopLogger())

			doc := testDocument("MyGame", "20240115_103000", map[string]string{"a.cs": "x"}, nil)
			diff := snap.Diff(nil, snap.Flatten(doc.Root))

			id, err := store.Persist(doc, diff)
			if err != nil {
				t.Fatalf("Persist() error = %v", err)
			}
			if id != "MyGame_20240115_103000" {
				t.Errorf("Persist() id = %q, want MyGame_20240115_103000", id)
			}

			got, err := store.LoadDocument(id)
			if err != nil {
				t.Fatalf("LoadDocument() error = %v", err)
			}
			if !reflect.DeepEqual(got.Root, doc.Root) {
				t.Errorf("LoadDocument() root = %+v, want %+v", got.Root, doc.Root)
			}
			if got.ScanMetadata.ScanPath != "/src/MyGame" {
				t.Errorf("ScanPath = %q", got.ScanMetadata.ScanPath)
			}

			meta, ok := store.LoadMetadata(id)
			if !ok {
				t.Fatal("LoadMetadata() failed")
			}
			if meta.SnapshotID != "20240115_103000" || meta.IsRestorePoint || meta.ChangesSummary.NewFiles != 1 {
				t.Errorf("LoadMetadata() = %+v", meta)
			}
			if meta.Encrypted {
				t.Error("Encrypted = true for plaintext store")
			}

			storedDiff, err := store.LoadDiff(id)
			if err != nil {
				t.Fatalf("LoadDiff() error = %v", err)
			}
			if !reflect.DeepEqual(storedDiff.NewFiles, []string{"a.cs"}) {
				t.Errorf("LoadDiff() NewFiles = %v", storedDiff.NewFiles)
			}
		})
	}
}

func TestSnapshotStore_Entries(t *testing.T) {
	v := testutil.NewTestVault()
	store := newTestStore(v, nil)

	first := testDocument("MyGame", "20240115_103000", map[string]string{"a.cs": "x"}, nil)
	firstID, err := store.Persist(first, snap.Diff(nil, snap.Flatten(first.Root)))
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	r := rawArchive(t, v, "MyGame", firstID)
	want := []string{firstID + ".json", firstID + "_diff.json", firstID + "_index.json", snap.MetadataEntry}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v (no detailed diff without modified files)", got, want)
	}

	second := testDocument("MyGame", "20240115_103001", map[string]string{"a.cs": "z"}, &firstID)
	diff := snap.Diff(snap.Flatten(first.Root), snap.Flatten(second.Root))
	secondID, err := store.Persist(second, diff)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	r = rawArchive(t, v, "MyGame", secondID)
	if !r.Has(secondID + "_detailed_diff.txt") {
		t.Fatalf("entries = %v, want detailed diff", r.Names())
	}
	detailed, err := r.ReadEntry(secondID + "_detailed_diff.txt")
	if err != nil {
		t.Fatalf("ReadEntry() error = %v", err)
	}
	if !strings.Contains(string(detailed), "- x\n+ z\n") {
		t.Errorf("detailed diff = %q", detailed)
	}

	metaData, err := r.ReadEntry(snap.MetadataEntry)
	if err != nil {
		t.Fatalf("ReadEntry(metadata) error = %v", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(metaData, &meta); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if meta["previous_backup"] != firstID || meta["is_restore_point"] != true {
		t.Errorf("metadata = %v", meta)
	}
}

func TestSnapshotStore_PersistExistingID(t *testing.T) {
	store := newTestStore(testutil.NewTestVault(), nil)
	doc := testDocument("MyGame", "20240115_103000", map[string]string{"a.cs": "x"}, nil)

	if _, err := store.Persist(doc, nil); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if _, err := store.Persist(doc, nil); err == nil {
		t.Error("Persist() of an existing identifier expected error, got nil")
	}
}

func TestSnapshotStore_ListArchives(t *testing.T) {
	v := testutil.NewTestVault()
	store := newTestStore(v, nil)

	t.Run("unknown repository", func(t *testing.T) {
		_, err := store.ListArchives("MyGame")
		if !errors.Is(err, snap.ErrNoBackupLocation) {
			t.Errorf("ListArchives() error = %v, want ErrNoBackupLocation", err)
		}
		_, found, err := store.FindLatest("MyGame")
		if err != nil || found {
			t.Errorf("FindLatest() = (%v, %v), want (false, nil)", found, err)
		}
	})

	for _, ts := range []string{"20240115_103000", "20240301_080000", "20240201_120000"} {
		doc := testDocument("MyGame", ts, map[string]string{"a.cs": ts}, nil)
		if _, err := store.Persist(doc, nil); err != nil {
			t.Fatalf("Persist() error = %v", err)
		}
	}
	// foreign and malformed names sharing the repository's location
	v.PutArchive("MyGame", "MyGame_backup", bytes.NewReader(nil), 0)
	v.PutArchive("MyGame", "MyGame_extra_20240401_000000", bytes.NewReader(nil), 0)

	t.Run("newest first", func(t *testing.T) {
		ids, err := store.ListArchives("MyGame")
		if err != nil {
			t.Fatalf("ListArchives() error = %v", err)
		}
		want := []string{"MyGame_20240301_080000", "MyGame_20240201_120000", "MyGame_20240115_103000"}
		if !reflect.DeepEqual(ids, want) {
			t.Errorf("ListArchives() = %v, want %v", ids, want)
		}

		latest, found, err := store.FindLatest("MyGame")
		if err != nil || !found || latest != want[0] {
			t.Errorf("FindLatest() = (%q, %v, %v), want (%q, true, nil)", latest, found, err, want[0])
		}
	})
}

func TestSnapshotStore_Encrypted(t *testing.T) {
	v := testutil.NewTestVault()
	enc := testutil.NewTestEncryptor()
	store := newTestStore(v, enc)

	doc := testDocument("MyGame", "20240115_103000", map[string]string{"a.cs": "secret code"}, nil)
	id, err := store.Persist(doc, snap.Diff(nil, snap.Flatten(doc.Root)))
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if enc.Encrypted() != 2 {
		t.Errorf("Encrypted() = %d, want 2 (document and diff)", enc.Encrypted())
	}

	r := rawArchive(t, v, "MyGame", id)
	raw, err := r.ReadEntry(id + ".json")
	if err != nil {
		t.Fatalf("ReadEntry() error = %v", err)
	}
	var probe map[string]any
	if json.Unmarshal(raw, &probe) == nil {
		t.Error("document entry should not be plain JSON when encrypted")
	}

	meta, ok := store.LoadMetadata(id)
	if !ok || !meta.Encrypted {
		t.Fatalf("LoadMetadata() = (%+v, %v), want readable encrypted metadata", meta, ok)
	}

	if _, err := store.LoadTree(id); !errors.Is(err, snap.ErrDataUnavailable) {
		t.Errorf("LoadTree() without key error = %v, want ErrDataUnavailable", err)
	}
	if _, err := store.LoadDiff(id); !errors.Is(err, snap.ErrDataUnavailable) {
		t.Errorf("LoadDiff() without key error = %v, want ErrDataUnavailable", err)
	}

	store.UseDecryption(&encryption.TestDecryptionContext{})
	tree, err := store.LoadTree(id)
	if err != nil {
		t.Fatalf("LoadTree() with key error = %v", err)
	}
	if tree.Children[0].Content != "secret code" {
		t.Errorf("Content = %q, want secret code", tree.Children[0].Content)
	}
}

func TestSnapshotStore_Corrupt(t *testing.T) {
	t.Run("not a zip", func(t *testing.T) {
		v := testutil.NewTestVault()
		store := newTestStore(v, nil)
		doc := testDocument("MyGame", "20240115_103000", map[string]string{"a.cs": "x"}, nil)
		id, err := store.Persist(doc, nil)
		if err != nil {
			t.Fatalf("Persist() error = %v", err)
		}
		v.Corrupt("MyGame", id, []byte("definitely not a zip"))

		if _, err := store.LoadTree(id); !errors.Is(err, snap.ErrCorruptArchive) {
			t.Errorf("LoadTree() error = %v, want ErrCorruptArchive", err)
		}
		if _, ok := store.LoadMetadata(id); ok {
			t.Error("LoadMetadata() ok = true for corrupt archive")
		}
	})

	t.Run("no tree document", func(t *testing.T) {
		v := testutil.NewTestVault()
		store := newTestStore(v, nil)
		data, err := archive.Pack([]archive.Entry{{Name: snap.MetadataEntry, Data: []byte(`{"timestamp":"20240115_103000"}`)}}, archive.Deflate)
		if err != nil {
			t.Fatalf("Pack() error = %v", err)
		}
		id := "MyGame_20240115_103000"
		if err := v.PutArchive("MyGame", id, bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutArchive() error = %v", err)
		}

		if _, err := store.LoadDocument(id); !errors.Is(err, snap.ErrCorruptArchive) {
			t.Errorf("LoadDocument() error = %v, want ErrCorruptArchive", err)
		}
		diff, err := store.LoadDiff(id)
		if err != nil || diff != nil {
			t.Errorf("LoadDiff() = (%v, %v), want (nil, nil)", diff, err)
		}
	})

	t.Run("bad JSON document", func(t *testing.T) {
		v := testutil.NewTestVault()
		store := newTestStore(v, nil)
		id := "MyGame_20240115_103000"
		data, err := archive.Pack([]archive.Entry{
			{Name: id + ".json", Data: []byte("{not json")},
			{Name: snap.MetadataEntry, Data: []byte(`{}`)},
		}, archive.Deflate)
		if err != nil {
			t.Fatalf("Pack() error = %v", err)
		}
		if err := v.PutArchive("MyGame", id, bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutArchive() error = %v", err)
		}

		if _, err := store.LoadTree(id); !errors.Is(err, snap.ErrCorruptArchive) {
			t.Errorf("LoadTree() error = %v, want ErrCorruptArchive", err)
		}
	})

	t.Run("missing archive", func(t *testing.T) {
		store := newTestStore(testutil.NewTestVault(), nil)
		if _, err := store.LoadTree("MyGame_20240115_103000"); !errors.Is(err, snap.ErrDataUnavailable) {
			t.Errorf("LoadTree() error = %v, want ErrDataUnavailable", err)
		}
	})
}

func TestSnapshotStore_LoadIndex(t *testing.T) {
	v := testutil.NewTestVault()
	store := newTestStore(v, testutil.NewTestEncryptor())

	doc := testDocument("MyGame", "20240115_103000", map[string]string{"a.cs": "x", "b.cs": "y"}, nil)
	id, err := store.Persist(doc, nil)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	// readable without unlocking
	index, err := store.LoadIndex(id)
	if err != nil {
		t.Fatalf("LoadIndex() error = %v", err)
	}
	want := snap.FileMap{
		"a.cs": {Hash: snap.HashContent("x")},
		"b.cs": {Hash: snap.HashContent("y")},
	}
	if !reflect.DeepEqual(index, want) {
		t.Errorf("LoadIndex() = %v, want %v", index, want)
	}

	// the index is not mistaken for the tree document
	store.UseDecryption(&encryption.TestDecryptionContext{})
	if _, err := store.LoadTree(id); err != nil {
		t.Errorf("LoadTree() error = %v", err)
	}
}

func TestSnapshotStore_LoadIndexMissing(t *testing.T) {
	v := testutil.NewTestVault()
	store := newTestStore(v, nil)
	id := "MyGame_20240115_103000"
	data, err := archive.Pack([]archive.Entry{{Name: snap.MetadataEntry, Data: []byte(`{}`)}}, archive.Deflate)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if err := v.PutArchive("MyGame", id, bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("PutArchive() error = %v", err)
	}

	if _, err := store.LoadIndex(id); !errors.Is(err, snap.ErrCorruptArchive) {
		t.Errorf("LoadIndex() error = %v, want ErrCorruptArchive", err)
	}
}
