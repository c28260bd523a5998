package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/asafonov/docqa/internal/core/domain"
)

func newChunkRepoWithMock(t *testing.T) (*ChunkRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ChunkRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestScanAllDecodesEmbeddings(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"id", "document_id", "document_name", "content", "embedding",
		"chunk_index", "start_offset", "end_offset",
	}).AddRow("c1", "doc-1", "handbook.pdf", "vacation policy", []byte(`[0.1,0.2]`), 0, 0, 15)

	mock.ExpectQuery("SELECT id, document_id, document_name").WillReturnRows(rows)

	chunks, err := repo.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	chunk := chunks[0]
	if chunk.ID != "c1" || chunk.DocumentName != "handbook.pdf" {
		t.Fatalf("chunk = %+v", chunk)
	}
	if len(chunk.Embedding) != 2 || chunk.Embedding[0] != 0.1 {
		t.Fatalf("embedding = %v, want decoded JSON vector", chunk.Embedding)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestScanAllRejectsMalformedEmbedding(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"id", "document_id", "document_name", "content", "embedding",
		"chunk_index", "start_offset", "end_offset",
	}).AddRow("c1", "doc-1", "handbook.pdf", "text", []byte(`not json`), 0, 0, 4)

	mock.ExpectQuery("SELECT id, document_id, document_name").WillReturnRows(rows)

	if _, err := repo.ScanAll(context.Background()); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

func TestScanByDocumentsEmptyInputSkipsQuery(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	chunks, err := repo.ScanByDocuments(context.Background(), nil)
	if err != nil || chunks != nil {
		t.Fatalf("ScanByDocuments(nil) = %v, %v, want nil, nil", chunks, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestScanByDocumentsBindsEveryID(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"id", "document_id", "document_name", "content", "embedding",
		"chunk_index", "start_offset", "end_offset",
	}).AddRow("c1", "doc-1", "a.pdf", "text", []byte(`[]`), 0, 0, 4)

	mock.ExpectQuery("SELECT id, document_id, document_name").
		WithArgs("doc-1", "doc-2").
		WillReturnRows(rows)

	chunks, err := repo.ScanByDocuments(context.Background(), []string{"doc-1", "doc-2"})
	if err != nil {
		t.Fatalf("ScanByDocuments: %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "c1" {
		t.Fatalf("chunks = %+v", chunks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTextSearchReturnsRankedHits(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "score"}).
		AddRow("c2", 0.61).
		AddRow("c1", 0.42)

	mock.ExpectQuery("SELECT id, ts_rank").
		WithArgs("vacation policy", 30).
		WillReturnRows(rows)

	hits, err := repo.TextSearch(context.Background(), "vacation policy", 30)
	if err != nil {
		t.Fatalf("TextSearch: %v", err)
	}
	if len(hits) != 2 || hits[0].ChunkID != "c2" || hits[0].Score != 0.61 {
		t.Fatalf("hits = %+v", hits)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListDocumentsDistinct(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"document_id", "document_name"}).
		AddRow("doc-1", "a.pdf").
		AddRow("doc-2", "b.pdf")

	mock.ExpectQuery("SELECT DISTINCT document_id, document_name").WillReturnRows(rows)

	refs, err := repo.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(refs) != 2 || refs[1].Name != "b.pdf" {
		t.Fatalf("refs = %+v", refs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveClusterAssignmentsReplacesAllInOneTx(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_clusters").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO document_clusters").
		WithArgs("doc-1", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_clusters").
		WithArgs("doc-2", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveClusterAssignments(context.Background(), []domain.ClusterAssignment{
		{DocumentID: "doc-1", ClusterID: 0},
		{DocumentID: "doc-2", ClusterID: 1},
	})
	if err != nil {
		t.Fatalf("SaveClusterAssignments: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveClusterAssignmentsRollsBackOnInsertFailure(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_clusters").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO document_clusters").
		WithArgs("doc-1", 0, sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.SaveClusterAssignments(context.Background(), []domain.ClusterAssignment{
		{DocumentID: "doc-1", ClusterID: 0},
	})
	if err == nil {
		t.Fatalf("expected insert failure to propagate")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
