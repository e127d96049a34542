package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

type kvFake struct {
	mu      sync.Mutex
	data    map[string]map[string][]byte
	getErr  error
	putErr  error
	flushes int
	// beforePut runs under the lock ahead of every Put.
	beforePut func(data map[string]map[string][]byte, bucket, key string)
}

func newKVFake() *kvFake {
	return &kvFake{data: map[string]map[string][]byte{}}
}

func (f *kvFake) Get(_ context.Context, bucket, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	v, ok := f.data[bucket][key]
	return v, ok, nil
}

func (f *kvFake) Put(_ context.Context, bucket, key string, value []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return false, f.putErr
	}
	if f.data[bucket] == nil {
		f.data[bucket] = map[string][]byte{}
	}
	if f.beforePut != nil {
		f.beforePut(f.data, bucket, key)
	}
	if _, exists := f.data[bucket][key]; exists {
		return false, nil
	}
	f.data[bucket][key] = append([]byte(nil), value...)
	return true, nil
}

func (f *kvFake) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *kvFake) Scan(_ context.Context, bucket string, fn func(string, []byte) error) error {
	f.mu.Lock()
	keys := make([]string, 0, len(f.data[bucket]))
	for k := range f.data[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = f.data[bucket][k]
	}
	f.mu.Unlock()
	for i, k := range keys {
		if err := fn(k, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *kvFake) Delete(_ context.Context, bucket string, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data[bucket], k)
	}
	return nil
}

func (f *kvFake) count(bucket string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data[bucket])
}

// fileStoreFake mimics the no-overwrite placement of the local filesystem store.
type fileStoreFake struct {
	files    map[string][]byte
	placeErr error
	removed  []string
}

func newFileStoreFake() *fileStoreFake {
	return &fileStoreFake{files: map[string][]byte{}}
}

func (f *fileStoreFake) Place(_ context.Context, dir, name string, data []byte) (string, error) {
	if f.placeErr != nil {
		return "", f.placeErr
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		if _, exists := f.files[path]; exists {
			continue
		}
		f.files[path] = append([]byte(nil), data...)
		return path, nil
	}
}

func (f *fileStoreFake) Remove(_ context.Context, path string) error {
	f.removed = append(f.removed, path)
	delete(f.files, path)
	return nil
}

type sourceFake struct {
	messages map[string][]domain.CandidateDocument
	order    []string
	listErr  error
	fetchErr map[string]error
	released []string
}

func (f *sourceFake) ListMessages(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.order...), nil
}

func (f *sourceFake) FetchDocuments(_ context.Context, sourceID string) ([]domain.CandidateDocument, error) {
	if err := f.fetchErr[sourceID]; err != nil {
		return nil, err
	}
	return f.messages[sourceID], nil
}

func (f *sourceFake) Release(_ context.Context, doc domain.CandidateDocument) error {
	f.released = append(f.released, doc.Ref())
	return nil
}

type extractorFake struct {
	texts map[string]string
	err   error
}

func (f *extractorFake) Extract(_ context.Context, filename string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if text, ok := f.texts[filename]; ok {
		return text, nil
	}
	return string(data), nil
}

type embedderFake struct {
	vector []float32
	err    error
	calls  int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type indexFake struct {
	matches  []domain.ExemplarMatch
	err      error
	replaced []domain.Exemplar
}

func (f *indexFake) Nearest(_ context.Context, _ []float32, k int) ([]domain.ExemplarMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.matches) > k {
		return f.matches[:k], nil
	}
	return f.matches, nil
}

func (f *indexFake) Replace(_ context.Context, exemplars []domain.Exemplar) error {
	if f.err != nil {
		return f.err
	}
	f.replaced = exemplars
	return nil
}

func (f *indexFake) Count(context.Context) (int, error) { return len(f.replaced), nil }

type reasonerFake struct {
	response string
	err      error
	block    bool
	prompts  []string
}

func (f *reasonerFake) GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

var errBackendDown = errors.New("backend down")
