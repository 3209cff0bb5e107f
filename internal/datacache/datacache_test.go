package datacache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
	"backsim/internal/series"
)

func makeTable(t *testing.T, symbol string, n int) *series.Table {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = models.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	table, err := series.New(symbol, bars)
	require.NoError(t, err)
	return table
}

func mustPublish(t *testing.T, c *Cache, table *series.Table) Handle {
	t.Helper()
	h, err := c.Publish(table)
	require.NoError(t, err)
	return h
}

func TestPublishOnceAttachMany(t *testing.T) {
	c := New()
	table := makeTable(t, "ACME", 5)

	h := mustPublish(t, c, table)
	assert.Equal(t, "ACME", h.Symbol())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []string{"ACME"}, c.Symbols())

	_, err := c.Publish(table)
	require.Error(t, err)
	assert.True(t, bterrors.Is(err, bterrors.ErrAlreadyPublished))

	got, err := c.Attach(h)
	require.NoError(t, err)
	assert.Same(t, table, got, "attach shares the published table, no copy")

	_, err = c.Attach(h)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Attachments("ACME"))

	// Get is the symbol-keyed attach for callers without a handle.
	got, err = c.Get("ACME")
	require.NoError(t, err)
	assert.Same(t, table, got)
	assert.Equal(t, 3, c.Attachments("ACME"))
}

func TestAttachUnpublishedFails(t *testing.T) {
	c := New()
	_, err := c.Get("GHOST")
	require.Error(t, err)
	assert.True(t, bterrors.Is(err, bterrors.ErrNotPublished))

	// A zero handle never resolves.
	_, err = c.Attach(Handle{})
	require.Error(t, err)
	assert.True(t, bterrors.Is(err, bterrors.ErrNotPublished))
}

func TestPublishEmptyRejected(t *testing.T) {
	c := New()
	_, err := c.Publish(nil)
	require.Error(t, err)
}

func TestReleaseAllEmptiesTheCache(t *testing.T) {
	c := New()
	h := mustPublish(t, c, makeTable(t, "AAA", 3))
	mustPublish(t, c, makeTable(t, "BBB", 3))
	_, err := c.Attach(h)
	require.NoError(t, err)

	assert.Equal(t, 2, c.ReleaseAll())
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Attachments("AAA"))

	// Handles from before the release are dead.
	_, err = c.Attach(h)
	require.Error(t, err)

	// The cache is reusable after a release.
	mustPublish(t, c, makeTable(t, "AAA", 3))
	assert.Equal(t, 1, c.Len())
}

func TestConcurrentAttaches(t *testing.T) {
	c := New()
	handles := make([]Handle, 8)
	for i := range handles {
		handles[i] = mustPublish(t, c, makeTable(t, fmt.Sprintf("SYM%d", i), 4))
	}

	const readers = 16
	var wg sync.WaitGroup
	errs := make(chan error, readers*len(handles))
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, h := range handles {
				if _, err := c.Attach(h); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent attach failed: %v", err)
	}
	for _, h := range handles {
		assert.Equal(t, readers, c.Attachments(h.Symbol()))
	}
}
