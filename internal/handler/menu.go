package handler

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/xenking/jachnun-storefront/internal/domain/catalog"
)

// GetMenu handles GET /api/menu: active items and delivery zones.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	var (
		items []catalog.Item
		zones []catalog.Zone
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		items, err = h.menu.ListItems(ctx)
		return err
	})
	g.Go(func() (err error) {
		zones, err = h.menu.ListZones(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		fail(w, r, err, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, newMenuResponse(items, zones))
}
