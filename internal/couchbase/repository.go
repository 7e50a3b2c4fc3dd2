package couchbase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"edgar-sgml-ingest-system/internal/models"

	"github.com/couchbase/gocb/v2"
	"github.com/sirupsen/logrus"
)

// FilingRepository provides CRUD + search over ParsedFiling in Couchbase.
type FilingRepository struct {
	client *Client
	logger *logrus.Logger
}

// SearchOptions controls server-side filtering/pagination for Search().
type SearchOptions struct {
	FormType string     `json:"form_type,omitempty"`
	Source   string     `json:"source,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}

// SearchResult returns a page of filings plus simple paging info.
type SearchResult struct {
	Filings []models.ParsedFiling `json:"filings"`
	Total   int                   `json:"total"` // -1 means there might be more (we only fetched a page)
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// NewFilingRepository wires the repository with a client and logger.
func NewFilingRepository(client *Client, logger *logrus.Logger) *FilingRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FilingRepository{client: client, logger: logger}
}

// Store upserts a ParsedFiling keyed by its accession number, falling back
// to the pipeline ID when the header carried none.
func (r *FilingRepository) Store(ctx context.Context, filing *models.ParsedFiling) error {
	key := r.filingKey(filing)

	r.logger.WithFields(logrus.Fields{
		"filing_id": filing.ID,
		"key":       key,
		"form_type": filing.FormType,
	}).Debug("storing filing")

	_, err := r.client.collection.Upsert(key, filing, &gocb.UpsertOptions{
		Timeout: r.client.config.OperationTimeout,
	})
	if err != nil {
		r.logger.WithError(err).WithField("filing_id", filing.ID).Error("failed to store filing")
		return fmt.Errorf("store %s: %w", filing.ID, err)
	}

	r.logger.WithFields(logrus.Fields{
		"filing_id":        filing.ID,
		"accession_number": filing.AccessionNumber,
		"documents":        len(filing.Documents),
	}).Info("filing stored")
	return nil
}

// Get fetches a filing by accession number.
func (r *FilingRepository) Get(ctx context.Context, accessionNumber string) (*models.ParsedFiling, error) {
	key := "filing::" + accessionNumber

	res, err := r.client.collection.Get(key, &gocb.GetOptions{
		Timeout: r.client.config.OperationTimeout,
	})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, fmt.Errorf("filing not found: %s", accessionNumber)
		}
		return nil, fmt.Errorf("get %s: %w", accessionNumber, err)
	}

	var filing models.ParsedFiling
	if err := res.Content(&filing); err != nil {
		return nil, fmt.Errorf("decode %s: %w", accessionNumber, err)
	}
	return &filing, nil
}

// Delete removes a filing by accession number (no-op if already missing).
func (r *FilingRepository) Delete(ctx context.Context, accessionNumber string) error {
	key := "filing::" + accessionNumber
	_, err := r.client.collection.Remove(key, &gocb.RemoveOptions{
		Timeout: r.client.config.OperationTimeout,
	})
	if err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
		return fmt.Errorf("delete %s: %w", accessionNumber, err)
	}
	r.logger.WithField("accession_number", accessionNumber).Info("filing deleted")
	return nil
}

// Search runs a parameterized SQL++ (N1QL) query over the collection using the provided options.
func (r *FilingRepository) Search(ctx context.Context, options SearchOptions) (*SearchResult, error) {
	// sane paging defaults
	if options.Limit <= 0 {
		options.Limit = 50
	}
	if options.Limit > 1000 {
		options.Limit = 1000
	}
	if options.Offset < 0 {
		options.Offset = 0
	}

	query, params := r.buildSearchQuery(options)

	r.logger.WithFields(logrus.Fields{
		"query":  query,
		"params": params,
	}).Debug("executing search")

	result, err := r.client.cluster.Query(query, &gocb.QueryOptions{
		NamedParameters: params,
		Timeout:         r.client.config.OperationTimeout,
	})
	if err != nil {
		r.logger.WithError(err).Error("search query failed")
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer result.Close()

	filings := make([]models.ParsedFiling, 0, options.Limit)
	for result.Next() {
		var row struct {
			Filing models.ParsedFiling `json:"filing"`
		}
		if err := result.Row(&row); err != nil {
			r.logger.WithError(err).Warn("decode search row")
			continue
		}
		filings = append(filings, row.Filing)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate search: %w", err)
	}

	// Cheap "is there probably more?" signal without a second COUNT() query.
	total := len(filings)
	if len(filings) == options.Limit {
		total = -1
	}

	r.logger.WithFields(logrus.Fields{
		"result_count": len(filings),
		"limit":        options.Limit,
		"offset":       options.Offset,
	}).Info("search completed")

	return &SearchResult{
		Filings: filings,
		Total:   total,
		Limit:   options.Limit,
		Offset:  options.Offset,
	}, nil
}

// GetByFormType convenience wrapper for Search() by form type.
func (r *FilingRepository) GetByFormType(ctx context.Context, formType string, limit int) ([]models.ParsedFiling, error) {
	opts := SearchOptions{FormType: formType, Limit: limit}
	res, err := r.Search(ctx, opts)
	if err != nil {
		return nil, err
	}
	return res.Filings, nil
}

// GetRecent returns the most recently processed filings (ordered DESC).
func (r *FilingRepository) GetRecent(ctx context.Context, limit int) ([]models.ParsedFiling, error) {
	if limit <= 0 {
		limit = 20
	}
	keyspace := r.qualifiedKeyspace()

	q := fmt.Sprintf(`
		SELECT filing.* FROM %s AS filing
		WHERE filing.accession_number IS NOT MISSING
		ORDER BY filing.processed_at DESC
		LIMIT $limit
	`, keyspace)

	result, err := r.client.cluster.Query(q, &gocb.QueryOptions{
		NamedParameters: map[string]interface{}{"limit": limit},
		Timeout:         r.client.config.OperationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("recent query: %w", err)
	}
	defer result.Close()

	var filings []models.ParsedFiling
	for result.Next() {
		var filing models.ParsedFiling
		if err := result.Row(&filing); err != nil {
			r.logger.WithError(err).Warn("decode recent row")
			continue
		}
		filings = append(filings, filing)
	}
	return filings, result.Err()
}

// GetStats returns simple aggregated stats across the collection.
func (r *FilingRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	keyspace := r.qualifiedKeyspace()

	q := fmt.Sprintf(`
		SELECT
			COUNT(*) AS total_filings,
			COUNT(DISTINCT form_type) AS form_types,
			SUM(ARRAY_LENGTH(documents)) AS total_documents,
			AVG(size) AS avg_size
		FROM %s
		WHERE accession_number IS NOT MISSING
	`, keyspace)

	result, err := r.client.cluster.Query(q, &gocb.QueryOptions{
		Timeout: r.client.config.OperationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("stats query: %w", err)
	}
	defer result.Close()

	var stats map[string]interface{}
	if result.Next() {
		if err := result.Row(&stats); err != nil {
			return nil, fmt.Errorf("decode stats: %w", err)
		}
	}
	return stats, result.Err()
}

// --- helpers ---

func (r *FilingRepository) filingKey(filing *models.ParsedFiling) string {
	if filing.AccessionNumber != "" {
		return "filing::" + filing.AccessionNumber
	}
	return "filing::" + filing.ID
}

// qualifiedKeyspace returns `bucket`.`scope`.`collection` for Server 7+ collections.
func (r *FilingRepository) qualifiedKeyspace() string {
	return fmt.Sprintf("`%s`.`%s`.`%s`",
		r.client.config.BucketName,
		r.client.config.ScopeName,
		r.client.config.CollectionName,
	)
}

// buildSearchQuery composes a parameterized SQL++ query and its named params.
func (r *FilingRepository) buildSearchQuery(options SearchOptions) (string, map[string]interface{}) {
	keyspace := r.qualifiedKeyspace()
	conds := []string{"filing.accession_number IS NOT MISSING"} // baseline condition
	params := make(map[string]interface{})

	if options.FormType != "" {
		conds = append(conds, "filing.form_type = $form_type")
		params["form_type"] = options.FormType
	}

	if options.Source != "" {
		conds = append(conds, "filing.source = $source")
		params["source"] = options.Source
	}

	// Date range (inclusive)
	if options.DateFrom != nil {
		conds = append(conds, "filing.timestamp >= $date_from")
		params["date_from"] = options.DateFrom.Format(time.RFC3339)
	}
	if options.DateTo != nil {
		conds = append(conds, "filing.timestamp <= $date_to")
		params["date_to"] = options.DateTo.Format(time.RFC3339)
	}

	where := strings.Join(conds, " AND ")

	q := fmt.Sprintf(`
		SELECT filing FROM %s AS filing
		WHERE %s
		ORDER BY filing.processed_at DESC
		LIMIT $limit OFFSET $offset
	`, keyspace, where)

	params["limit"] = options.Limit
	params["offset"] = options.Offset
	return q, params
}
