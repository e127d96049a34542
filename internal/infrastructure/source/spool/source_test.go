package spool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/core/usecase"
	"github.com/kirillkom/paperflow/internal/infrastructure/repository/memory"
	"github.com/kirillkom/paperflow/internal/infrastructure/storage/localfs"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func listIDs(t *testing.T, src *Source) []string {
	t.Helper()
	ids, err := src.ListMessages(context.Background())
	require.NoError(t, err)
	return ids
}

func idFor(t *testing.T, ids []string, name string) string {
	t.Helper()
	for _, id := range ids {
		if strings.HasPrefix(id, name+digestSeparator) {
			return id
		}
	}
	t.Fatalf("no source id for %s in %v", name, ids)
	return ""
}

func TestListMessagesTreatsDirectoriesAndLooseFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "msg-002", "facture.pdf"), "pdf")
	writeFile(t, filepath.Join(root, "msg-001", "paie.pdf"), "pdf")
	writeFile(t, filepath.Join(root, "scan.jpg"), "jpg")
	writeFile(t, filepath.Join(root, ".partial"), "x")

	src, err := New(root)
	require.NoError(t, err)
	ids := listIDs(t, src)
	require.Len(t, ids, 3)
	require.True(t, strings.HasPrefix(ids[0], "file:scan.jpg@"), ids[0])
	require.True(t, strings.HasPrefix(ids[1], "msg-001@"), ids[1])
	require.True(t, strings.HasPrefix(ids[2], "msg-002@"), ids[2])
}

func TestSourceIDChangesWhenNameIsReusedForNewContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "scan.pdf"), "first scan")
	writeFile(t, filepath.Join(root, "msg", "a.pdf"), "first attachment")

	src, err := New(root)
	require.NoError(t, err)
	before := listIDs(t, src)
	require.Equal(t, before, listIDs(t, src), "ids must be stable while content is unchanged")

	writeFile(t, filepath.Join(root, "scan.pdf"), "second scan")
	writeFile(t, filepath.Join(root, "msg", "a.pdf"), "second attachment")
	after := listIDs(t, src)

	require.NotEqual(t, idFor(t, before, "file:scan.pdf"), idFor(t, after, "file:scan.pdf"))
	require.NotEqual(t, idFor(t, before, "msg"), idFor(t, after, "msg"))
}

func TestFetchDocumentsFromMessageDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "msg-001", "facture.pdf"), "a")
	writeFile(t, filepath.Join(root, "msg-001", "releve.csv"), "b")
	writeFile(t, filepath.Join(root, "msg-001", ".hidden"), "c")

	src, err := New(root)
	require.NoError(t, err)
	id := idFor(t, listIDs(t, src), "msg-001")
	docs, err := src.FetchDocuments(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "facture.pdf", docs[0].Filename)
	require.Equal(t, id, docs[0].SourceID)
	require.Equal(t, "msg-001", docs[0].Subject)
	require.Equal(t, "application/pdf", docs[0].MimeType)
	require.False(t, docs[0].ReceivedAt.IsZero())
}

func TestFetchDocumentsRejectsMessageChangedSinceListing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "scan.pdf"), "v1")

	src, err := New(root)
	require.NoError(t, err)
	id := idFor(t, listIDs(t, src), "file:scan.pdf")
	writeFile(t, filepath.Join(root, "scan.pdf"), "v2")

	_, err = src.FetchDocuments(context.Background(), id)
	require.True(t, domain.IsKind(err, domain.ErrDocumentNotFound), "got %v", err)
}

func TestFetchDocumentsRejectsTraversal(t *testing.T) {
	src, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = src.FetchDocuments(context.Background(), "..@0123456789abcdef")
	require.True(t, domain.IsKind(err, domain.ErrInvalidInput))
	_, err = src.FetchDocuments(context.Background(), "file:../passwd@0123456789abcdef")
	require.True(t, domain.IsKind(err, domain.ErrInvalidInput))
	_, err = src.FetchDocuments(context.Background(), "msg-001")
	require.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}

func TestReleaseRemovesFileAndEmptyMessage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "msg-001", "a.pdf"), "a")
	writeFile(t, filepath.Join(root, "loose.pdf"), "b")

	src, err := New(root)
	require.NoError(t, err)
	ctx := context.Background()
	ids := listIDs(t, src)

	docs, err := src.FetchDocuments(ctx, idFor(t, ids, "msg-001"))
	require.NoError(t, err)
	require.NoError(t, src.Release(ctx, docs[0]))
	_, err = os.Stat(filepath.Join(root, "msg-001"))
	require.True(t, os.IsNotExist(err))

	loose, err := src.FetchDocuments(ctx, idFor(t, ids, "file:loose.pdf"))
	require.NoError(t, err)
	require.NoError(t, src.Release(ctx, loose[0]))
	_, err = os.Stat(root)
	require.NoError(t, err, "inbox root must survive release")
}

func TestPipelineFilesLaterDropReusingName(t *testing.T) {
	inbox := t.TempDir()
	src, err := New(inbox)
	require.NoError(t, err)
	files, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	store := memory.NewKVStore()

	runner := usecase.NewPipelineRunner(usecase.PipelineDeps{
		Source:     src,
		Classifier: usecase.NewTieredClassifier(domain.DefaultTaxonomy(), nil, nil, nil, usecase.ClassifierConfig{}, nil),
		Tracker:    usecase.NewIdentityTracker(store),
		Dedup:      usecase.NewContentDeduplicator(store),
		Organizer:  usecase.NewFileOrganizer(files.BasePath(), files, usecase.NewDateResolver()),
	})
	ctx := context.Background()

	writeFile(t, filepath.Join(inbox, "scan.pdf"), "facture janvier")
	first, err := runner.Run(ctx, domain.RunRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Organized)

	writeFile(t, filepath.Join(inbox, "scan.pdf"), "facture fevrier")
	second, err := runner.Run(ctx, domain.RunRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, second.Organized)
	require.Zero(t, second.SkippedIdentity)

	_, err = os.Stat(filepath.Join(inbox, "scan.pdf"))
	require.True(t, os.IsNotExist(err), "organized drop must leave the inbox")
}
