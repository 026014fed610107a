package snap

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"snapkeep/internal/archive"
)

// MetadataEntry is the archive entry holding ArchiveMetadata. It is never encrypted.
const MetadataEntry = "metadata.json"

// ArchiveID builds the identifier of the archive for one snapshot.
func ArchiveID(repository, snapshotID string) string {
	return repository + "_" + snapshotID
}

// ParseArchiveID splits an archive identifier into repository and snapshot ID.
// The snapshot ID is the fixed-width suffix, so repository names may contain '_'.
func ParseArchiveID(archiveID string) (repository, snapshotID string, err error) {
	n := len(SnapshotIDLayout)
	if len(archiveID) < n+2 || archiveID[len(archiveID)-n-1] != '_' {
		return "", "", fmt.Errorf("%w: malformed archive identifier %q", ErrInvalidSelection, archiveID)
	}
	repository = archiveID[:len(archiveID)-n-1]
	snapshotID = archiveID[len(archiveID)-n:]
	if _, err := time.Parse(SnapshotIDLayout, snapshotID); err != nil {
		return "", "", fmt.Errorf("%w: malformed archive identifier %q", ErrInvalidSelection, archiveID)
	}
	return repository, snapshotID, nil
}

func documentEntry(archiveID string) string { return archiveID + ".json" }
func diffEntry(archiveID string) string     { return archiveID + "_diff.json" }
func detailedEntry(archiveID string) string { return archiveID + "_detailed_diff.txt" }
func indexEntry(archiveID string) string    { return archiveID + "_index.json" }

// isDocumentEntry recognizes the full tree document among an archive's entries:
// any JSON entry that is neither the diff, the file index nor the metadata.
func isDocumentEntry(name string) bool {
	return strings.HasSuffix(name, ".json") &&
		!strings.HasSuffix(name, "_diff.json") &&
		!strings.HasSuffix(name, "_index.json") &&
		name != MetadataEntry
}

// FileIndex is the plaintext path to hash listing stored next to the tree
// document. It lets a scan diff against an encrypted archive without the key.
type FileIndex struct {
	Files map[string]string `json:"files"`
}

// SnapshotStore persists snapshot documents as archives in a Vault and reads
// them back. When an Encryptor is set, the tree document and both diffs are
// encrypted, and reading them needs a DecryptionContext. metadata.json and the
// file index stay plaintext.
type SnapshotStore struct {
	vault   Vault
	enc     Encryptor
	decrypt DecryptionContext
	method  archive.Method
	logger  Logger
}

// NewSnapshotStore creates a store over vault. enc may be nil for plaintext archives.
func NewSnapshotStore(vault Vault, enc Encryptor, method archive.Method, logger Logger) *SnapshotStore {
	return &SnapshotStore{
		vault:  vault,
		enc:    enc,
		method: method,
		logger: logger,
	}
}

// UseDecryption sets the unlocked key used to read encrypted archives.
func (s *SnapshotStore) UseDecryption(dc DecryptionContext) {
	s.decrypt = dc
}

// Location describes where the repository's archives are kept.
func (s *SnapshotStore) Location(repository string) string {
	return s.vault.Location(repository)
}

// Persist writes doc and diff as one archive named {repository}_{snapshotID}
// and returns that identifier. The archive holds the tree document, the diff,
// a detailed text diff when any file was modified, the file index and metadata.json.
func (s *SnapshotStore) Persist(doc *SnapshotDocument, diff *DiffReport) (string, error) {
	if doc == nil || doc.Root == nil {
		return "", fmt.Errorf("persisting snapshot: document has no tree")
	}
	if diff == nil {
		diff = Diff(nil, nil)
	}
	id := ArchiveID(doc.RepositoryName, doc.ScanMetadata.Timestamp)

	meta := &ArchiveMetadata{
		RepositoryName:     doc.RepositoryName,
		BackupDate:         doc.ScanMetadata.Datetime,
		SnapshotID:         doc.ScanMetadata.Timestamp,
		SourcePath:         doc.ScanMetadata.ScanPath,
		FileTypesIncluded:  doc.ScanMetadata.TargetExtensions,
		IsRestorePoint:     doc.ScanMetadata.IsRestorePoint,
		PreviousSnapshotID: doc.ScanMetadata.PreviousSnapshotID,
		ChangesSummary: ChangesSummary{
			NewFiles:      len(diff.NewFiles),
			ModifiedFiles: len(diff.ModifiedFiles),
			DeletedFiles:  len(diff.DeletedFiles),
		},
		Encrypted: s.enc != nil,
	}

	docData, err := encodeRecord(doc)
	if err != nil {
		return "", fmt.Errorf("persisting snapshot: %w", err)
	}
	diffData, err := encodeRecord(diff)
	if err != nil {
		return "", fmt.Errorf("persisting snapshot: %w", err)
	}
	metaData, err := encodeRecord(meta)
	if err != nil {
		return "", fmt.Errorf("persisting snapshot: %w", err)
	}
	index := FileIndex{Files: map[string]string{}}
	for p, f := range Flatten(doc.Root) {
		index.Files[p] = f.Hash
	}
	indexData, err := encodeRecord(index)
	if err != nil {
		return "", fmt.Errorf("persisting snapshot: %w", err)
	}

	payloads := []archive.Entry{
		{Name: documentEntry(id), Data: docData},
		{Name: diffEntry(id), Data: diffData},
	}
	if len(diff.FileDiffs) > 0 {
		report := DetailedReport(doc.RepositoryName, doc.ScanMetadata.Datetime, diff)
		payloads = append(payloads, archive.Entry{Name: detailedEntry(id), Data: []byte(report)})
	}
	for i := range payloads {
		sealed, err := s.seal(payloads[i].Data)
		if err != nil {
			return "", fmt.Errorf("encrypting %s: %w", payloads[i].Name, err)
		}
		payloads[i].Data = sealed
	}
	entries := append(payloads,
		archive.Entry{Name: indexEntry(id), Data: indexData},
		archive.Entry{Name: MetadataEntry, Data: metaData},
	)

	data, err := archive.Pack(entries, s.method)
	if err != nil {
		return "", fmt.Errorf("packing archive %s: %w", id, err)
	}
	if err := s.vault.PutArchive(doc.RepositoryName, id, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", fmt.Errorf("storing archive %s: %w", id, err)
	}

	s.logger.Info("archive written", "archive", id, "bytes", len(data), "entries", len(entries))
	return id, nil
}

// ListArchives returns the repository's archive identifiers, newest first.
// Identifiers of other repositories sharing the location are filtered out.
func (s *SnapshotStore) ListArchives(repository string) ([]string, error) {
	ids, err := s.vault.ListArchives(repository)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, id := range ids {
		repo, _, err := ParseArchiveID(id)
		if err != nil || repo != repository {
			continue
		}
		out = append(out, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// FindLatest returns the newest archive of the repository, or false if there is none.
func (s *SnapshotStore) FindLatest(repository string) (string, bool, error) {
	ids, err := s.ListArchives(repository)
	if err != nil {
		if errors.Is(err, ErrNoBackupLocation) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("listing archives: %w", err)
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	return ids[0], true, nil
}

// LoadDocument reads and parses the full tree document of an archive.
func (s *SnapshotStore) LoadDocument(archiveID string) (*SnapshotDocument, error) {
	r, encrypted, err := s.openArchive(archiveID)
	if err != nil {
		return nil, err
	}

	var name string
	for _, n := range r.Names() {
		if isDocumentEntry(n) {
			name = n
			break
		}
	}
	if name == "" {
		return nil, fmt.Errorf("%w: %s has no tree document", ErrCorruptArchive, archiveID)
	}

	data, err := r.ReadEntry(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, archiveID, err)
	}
	data, err = s.open(data, encrypted)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	var doc SnapshotDocument
	if err := decodeRecord(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, name, err)
	}
	if doc.Root == nil || !doc.Root.IsDir() {
		return nil, fmt.Errorf("%w: %s has no root directory", ErrCorruptArchive, name)
	}
	return &doc, nil
}

// LoadTree returns the root node of an archive's tree document.
func (s *SnapshotStore) LoadTree(archiveID string) (*TreeNode, error) {
	doc, err := s.LoadDocument(archiveID)
	if err != nil {
		return nil, err
	}
	return doc.Root, nil
}

// LoadMetadata reads only metadata.json. Failures are logged and reported as
// false so that listings can skip the archive and carry on.
func (s *SnapshotStore) LoadMetadata(archiveID string) (*ArchiveMetadata, bool) {
	r, err := s.readArchive(archiveID)
	if err != nil {
		s.logger.Error("error reading metadata", "archive", archiveID, "error", err)
		return nil, false
	}
	meta, err := readMetadata(r)
	if err != nil {
		s.logger.Error("error reading metadata", "archive", archiveID, "error", err)
		return nil, false
	}
	return meta, true
}

// LoadIndex reads the plaintext file index of an archive as a FileMap carrying
// hashes only. Archives written without an index yield ErrCorruptArchive.
func (s *SnapshotStore) LoadIndex(archiveID string) (FileMap, error) {
	r, err := s.readArchive(archiveID)
	if err != nil {
		return nil, err
	}
	data, err := r.ReadEntry(indexEntry(archiveID))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, archiveID, err)
	}
	var index FileIndex
	if err := decodeRecord(data, &index); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, archiveID, err)
	}

	files := make(FileMap, len(index.Files))
	for p, h := range index.Files {
		files[p] = FileEntry{Hash: h}
	}
	return files, nil
}

// LoadDiff reads the stored diff of an archive. It returns nil and no error
// if the archive has no diff entry.
func (s *SnapshotStore) LoadDiff(archiveID string) (*DiffReport, error) {
	r, encrypted, err := s.openArchive(archiveID)
	if err != nil {
		return nil, err
	}

	var name string
	for _, n := range r.Names() {
		if strings.HasSuffix(n, "_diff.json") {
			name = n
			break
		}
	}
	if name == "" {
		return nil, nil
	}

	data, err := r.ReadEntry(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, archiveID, err)
	}
	data, err = s.open(data, encrypted)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	var diff DiffReport
	if err := decodeRecord(data, &diff); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, name, err)
	}
	return &diff, nil
}

// readArchive fetches an archive from the vault and opens its zip directory.
func (s *SnapshotStore) readArchive(archiveID string) (*archive.Reader, error) {
	repository, _, err := ParseArchiveID(archiveID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := s.vault.GetArchive(repository, archiveID, &buf); err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrDataUnavailable, archiveID, err)
	}

	r, err := archive.NewReader(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, archiveID, err)
	}
	return r, nil
}

// openArchive is readArchive plus the encrypted flag from metadata.json.
// An archive without readable metadata is treated as plaintext.
func (s *SnapshotStore) openArchive(archiveID string) (*archive.Reader, bool, error) {
	r, err := s.readArchive(archiveID)
	if err != nil {
		return nil, false, err
	}
	meta, err := readMetadata(r)
	if err != nil {
		s.logger.Warn("archive metadata unreadable, assuming plaintext", "archive", archiveID, "error", err)
		return r, false, nil
	}
	return r, meta.Encrypted, nil
}

func readMetadata(r *archive.Reader) (*ArchiveMetadata, error) {
	data, err := r.ReadEntry(MetadataEntry)
	if err != nil {
		return nil, err
	}
	var meta ArchiveMetadata
	if err := decodeRecord(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// seal encrypts a payload when the store has an Encryptor.
func (s *SnapshotStore) seal(data []byte) ([]byte, error) {
	if s.enc == nil {
		return data, nil
	}
	var buf bytes.Buffer
	if err := s.enc.Encrypt(bytes.NewReader(data), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// open decrypts a payload read from an encrypted archive.
func (s *SnapshotStore) open(data []byte, encrypted bool) ([]byte, error) {
	if !encrypted {
		return data, nil
	}
	if s.decrypt == nil {
		return nil, fmt.Errorf("%w: archive is encrypted and no key was unlocked", ErrDataUnavailable)
	}
	var buf bytes.Buffer
	if err := s.decrypt.Decrypt(bytes.NewReader(data), &buf); err != nil {
		return nil, fmt.Errorf("%w: decrypting: %v", ErrDataUnavailable, err)
	}
	return buf.Bytes(), nil
}
