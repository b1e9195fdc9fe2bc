package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/classroom-sync/internal/constants"
	"github.com/yukikurage/classroom-sync/internal/models"
)

// storageKeys maps collections to the keys the browser client stores them
// under; each key becomes <key>.json in the data directory.
var storageKeys = map[Collection]string{
	CollectionTasks:             constants.StorageKeyTasks,
	CollectionNotifications:     constants.StorageKeyNotifications,
	CollectionComments:          constants.StorageKeyComments,
	CollectionEvaluationResults: constants.StorageKeyEvaluationResults,
	CollectionUsers:             constants.StorageKeyUsers,
}

// fileCodec ties a stored record type to its collection, its ingestion
// normalization and the key that identifies a record across writes.
type fileCodec[T any] struct {
	collection Collection
	normalize  func([]T)
	key        func(T) string
}

var (
	taskCodec = fileCodec[models.Task]{
		collection: CollectionTasks,
		normalize:  models.NormalizeTasks,
		key:        func(t models.Task) string { return t.ID },
	}
	notificationCodec = fileCodec[models.Notification]{
		collection: CollectionNotifications,
		normalize:  models.NormalizeNotifications,
		key:        func(n models.Notification) string { return n.ID },
	}
	commentCodec = fileCodec[models.Comment]{
		collection: CollectionComments,
		normalize:  models.NormalizeComments,
		key:        func(c models.Comment) string { return c.ID },
	}
	evaluationResultCodec = fileCodec[models.EvaluationResult]{
		collection: CollectionEvaluationResults,
		normalize:  func([]models.EvaluationResult) {},
		key: func(e models.EvaluationResult) string {
			if e.TaskID == "" || e.StudentUsername == "" {
				return ""
			}
			return e.TaskID + "\x00" + e.StudentUsername
		},
	}
	userCodec = fileCodec[models.User]{
		collection: CollectionUsers,
		normalize:  models.NormalizeUsers,
		key:        func(u models.User) string { return u.Username },
	}
)

// FileCollectionRepository keeps each collection as one JSON document in a
// directory, mirroring the key-value layout of the browser store.
//
// Records are decoded field by field when a whole-record decode fails: a
// field that does not fit its type is dropped and the rest of the record is
// kept. Only an element that is not an object at all becomes a zero value,
// which reconciliation then drops and counts.
//
// Writes merge each record with its stored version, so fields the client
// keeps but the models do not know survive, and records nobody changed are
// written back as they were read.
type FileCollectionRepository struct {
	dir string
	log *logrus.Entry
	mu  sync.Mutex
}

// NewFileCollectionRepository creates the data directory if needed.
func NewFileCollectionRepository(dir string, log *logrus.Entry) (*FileCollectionRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileCollectionRepository{dir: dir, log: log}, nil
}

func (r *FileCollectionRepository) ListTasks(ctx context.Context) ([]models.Task, error) {
	return readCollection(r, taskCodec)
}

func (r *FileCollectionRepository) ListNotifications(ctx context.Context) ([]models.Notification, error) {
	return readCollection(r, notificationCodec)
}

func (r *FileCollectionRepository) ListComments(ctx context.Context) ([]models.Comment, error) {
	return readCollection(r, commentCodec)
}

func (r *FileCollectionRepository) ListEvaluationResults(ctx context.Context) ([]models.EvaluationResult, error) {
	return readCollection(r, evaluationResultCodec)
}

func (r *FileCollectionRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	return readCollection(r, userCodec)
}

func (r *FileCollectionRepository) ReplaceTasks(ctx context.Context, tasks []models.Task) error {
	return writeCollection(r, taskCodec, tasks)
}

func (r *FileCollectionRepository) ReplaceNotifications(ctx context.Context, notifications []models.Notification) error {
	return writeCollection(r, notificationCodec, notifications)
}

func (r *FileCollectionRepository) ReplaceComments(ctx context.Context, comments []models.Comment) error {
	return writeCollection(r, commentCodec, comments)
}

func (r *FileCollectionRepository) ReplaceEvaluationResults(ctx context.Context, results []models.EvaluationResult) error {
	return writeCollection(r, evaluationResultCodec, results)
}

func (r *FileCollectionRepository) ReplaceUsers(ctx context.Context, users []models.User) error {
	return writeCollection(r, userCodec, users)
}

// Watch reports changes to collection files made by anyone, including this
// repository. Callers decide which collections they react to.
func (r *FileCollectionRepository) Watch(ctx context.Context, onChange func(Collection)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.dir, err)
	}

	byFile := make(map[string]Collection, len(storageKeys))
	for c, key := range storageKeys {
		byFile[key+".json"] = c
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if c, ok := byFile[filepath.Base(event.Name)]; ok {
				onChange(c)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.WithError(werr).Warn("File watcher error")
		}
	}
}

func (r *FileCollectionRepository) path(c Collection) string {
	return filepath.Join(r.dir, storageKeys[c]+".json")
}

// storedDocument is a collection document split into its raw records.
type storedDocument struct {
	items []json.RawMessage
	// keyed is set when the document is an object keyed by record id, the
	// shape the browser client uses for users
	keyed bool
}

// readDocument loads a collection stored either as a JSON array or as an
// object keyed by id (read in key order). Callers hold r.mu.
func (r *FileCollectionRepository) readDocument(c Collection) (storedDocument, error) {
	data, err := os.ReadFile(r.path(c))
	if errors.Is(err, os.ErrNotExist) {
		return storedDocument{}, nil
	}
	if err != nil {
		return storedDocument{}, err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return storedDocument{}, nil
	}

	var doc storedDocument
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &doc.items); err != nil {
			return storedDocument{}, err
		}
	case '{':
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(data, &keyed); err != nil {
			return storedDocument{}, err
		}
		doc.keyed = true
		for _, key := range slices.Sorted(maps.Keys(keyed)) {
			doc.items = append(doc.items, keyed[key])
		}
	default:
		return storedDocument{}, fmt.Errorf("unexpected document start %q", data[0])
	}
	return doc, nil
}

func readCollection[T any](r *FileCollectionRepository, codec fileCodec[T]) ([]T, error) {
	r.mu.Lock()
	doc, err := r.readDocument(codec.collection)
	r.mu.Unlock()
	if err != nil {
		return nil, readError(codec.collection, err)
	}
	return decodeRecords(r, codec, doc.items), nil
}

// decodeRecords decodes and normalizes every stored record, logging what had
// to be dropped.
func decodeRecords[T any](r *FileCollectionRepository, codec fileCodec[T], items []json.RawMessage) []T {
	records := make([]T, 0, len(items))
	malformed := 0
	var dropped []string
	for _, item := range items {
		record, bad, ok := decodeRecord[T](item)
		if !ok {
			malformed++
		}
		dropped = append(dropped, bad...)
		records = append(records, record)
	}
	codec.normalize(records)

	if malformed > 0 || len(dropped) > 0 {
		r.log.WithFields(logrus.Fields{
			"collection":     codec.collection,
			"malformed":      malformed,
			"dropped_fields": dropped,
		}).Warn("Malformed records in collection")
	}
	return records
}

// decodeRecord decodes one record. When the record as a whole does not fit
// T, each field is tried on its own and the ones that do not fit are
// reported in dropped. ok is false only when item is not an object.
func decodeRecord[T any](item json.RawMessage) (record T, dropped []string, ok bool) {
	if err := json.Unmarshal(item, &record); err == nil {
		return record, nil, true
	}

	record = *new(T)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return record, nil, false
	}

	good := make(map[string]json.RawMessage, len(fields))
	for name, value := range fields {
		single, err := json.Marshal(map[string]json.RawMessage{name: value})
		if err != nil {
			dropped = append(dropped, name)
			continue
		}
		var scratch T
		if err := json.Unmarshal(single, &scratch); err != nil {
			dropped = append(dropped, name)
			continue
		}
		good[name] = value
	}
	slices.Sort(dropped)

	data, err := json.Marshal(good)
	if err == nil {
		err = json.Unmarshal(data, &record)
	}
	if err != nil {
		return *new(T), dropped, false
	}
	return record, dropped, true
}

// storedRecord is a record as found on disk next to how it decodes.
type storedRecord struct {
	raw      json.RawMessage
	baseline json.RawMessage
}

func writeCollection[T any](r *FileCollectionRepository, codec fileCodec[T], records []T) error {
	c := codec.collection

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readDocument(c)
	if err != nil {
		r.log.WithError(err).WithField("collection", c).Warn("Overwriting unreadable collection")
		doc = storedDocument{}
	}

	stored := make(map[string]storedRecord, len(doc.items))
	for i, record := range decodeRecords(r, codec, doc.items) {
		key := codec.key(record)
		if key == "" {
			continue
		}
		if _, seen := stored[key]; seen {
			continue
		}
		baseline, err := json.Marshal(record)
		if err != nil {
			continue
		}
		stored[key] = storedRecord{raw: doc.items[i], baseline: baseline}
	}

	out := make([]json.RawMessage, 0, len(records))
	keys := make([]string, 0, len(records))
	for _, record := range records {
		current, err := json.Marshal(record)
		if err != nil {
			return writeError(c, err)
		}
		key := codec.key(record)
		if prev, ok := stored[key]; ok {
			current = mergeRecord(prev, current)
		}
		out = append(out, current)
		keys = append(keys, key)
	}

	var data []byte
	if doc.keyed && !slices.Contains(keys, "") {
		byKey := make(map[string]json.RawMessage, len(out))
		for i, key := range keys {
			byKey[key] = out[i]
		}
		data, err = json.Marshal(byKey)
	} else {
		data, err = json.Marshal(out)
	}
	if err != nil {
		return writeError(c, err)
	}

	if err := writeFileAtomic(r.path(c), data, 0o644); err != nil {
		return writeError(c, err)
	}
	return nil
}

// mergeRecord applies the fields that changed between the stored record's
// decoded form and current onto the stored raw record. Fields the models do
// not know are carried over untouched.
func mergeRecord(prev storedRecord, current json.RawMessage) json.RawMessage {
	if bytes.Equal(prev.baseline, current) {
		return prev.raw
	}

	var raw, baseline, next map[string]json.RawMessage
	if json.Unmarshal(prev.raw, &raw) != nil || json.Unmarshal(prev.baseline, &baseline) != nil || json.Unmarshal(current, &next) != nil {
		return current
	}

	for name := range baseline {
		if _, ok := next[name]; !ok {
			delete(raw, name)
		}
	}
	for name, value := range next {
		if old, ok := baseline[name]; ok && bytes.Equal(old, value) {
			continue
		}
		raw[name] = value
	}

	merged, err := json.Marshal(raw)
	if err != nil {
		return current
	}
	return merged
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(path), ".json")+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
