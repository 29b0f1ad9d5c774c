package handlers

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vmaximov/sellhub/internal/listing"
	"github.com/vmaximov/sellhub/internal/logging"
	"github.com/vmaximov/sellhub/internal/mykafka"
	"github.com/vmaximov/sellhub/internal/search"
	"github.com/vmaximov/sellhub/internal/util"
)

type ListingHandler struct {
	Store    *listing.Store
	Producer *mykafka.Producer
	Indexer  *search.Indexer
}

func (h *ListingHandler) GetListing(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	l, err := h.Store.Get(c.Request().Context(), uint(id))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *ListingHandler) GetListings(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, items, err := h.Store.List(c.Request().Context(), offset, limit)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *ListingHandler) MyListings(c echo.Context) error {
	userID := c.Get("userID").(uint)

	items, err := h.Store.ListByOwner(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": items, "count": len(items)})
}

func (h *ListingHandler) CreateListing(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("userID").(uint)

	fields, err := bindListingForm(c)
	if err != nil {
		return err
	}
	if fields.Title == nil || *fields.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}

	uploads, closeFiles, err := formUploads(c)
	if err != nil {
		return err
	}
	defer closeFiles()

	l, err := h.Store.Create(ctx, userID, fields, uploads)
	if err != nil {
		return httpError(err)
	}

	h.publish(c, map[string]interface{}{
		"type":       "listing_created",
		"listing_id": l.ID,
		"user_id":    userID,
		"title":      l.Title,
	})
	h.index(c, func(ctx context.Context) error { return h.Indexer.IndexListing(ctx, l) })

	return c.JSON(http.StatusCreated, l)
}

func (h *ListingHandler) PatchListing(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("userID").(uint)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	fields, err := bindListingForm(c)
	if err != nil {
		return err
	}

	uploads, closeFiles, err := formUploads(c)
	if err != nil {
		return err
	}
	defer closeFiles()

	l, err := h.Store.Update(ctx, uint(id), userID, fields, uploads)
	if err != nil {
		return httpError(err)
	}

	h.publish(c, map[string]interface{}{
		"type":       "listing_updated",
		"listing_id": l.ID,
		"user_id":    userID,
		"title":      l.Title,
	})
	h.index(c, func(ctx context.Context) error { return h.Indexer.IndexListing(ctx, l) })

	return c.JSON(http.StatusOK, l)
}

func (h *ListingHandler) DeleteListing(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("userID").(uint)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.Store.Delete(ctx, uint(id), userID); err != nil {
		return httpError(err)
	}

	h.publish(c, map[string]interface{}{
		"type":       "listing_deleted",
		"listing_id": id,
		"user_id":    userID,
	})
	h.index(c, func(ctx context.Context) error { return h.Indexer.DeleteListing(ctx, uint(id)) })

	return c.NoContent(http.StatusNoContent)
}

// bindListingForm reads the multipart/urlencoded listing attributes. Only
// fields present in the form produce non-nil pointers, so PATCH leaves the
// rest untouched.
func bindListingForm(c echo.Context) (listing.Fields, error) {
	var f listing.Fields

	values, err := c.FormParams()
	if err != nil {
		return f, echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}

	if v, ok := formValue(values, "title"); ok {
		f.Title = &v
	}
	if v, ok := formValue(values, "description"); ok {
		f.Description = &v
	}
	if v, ok := formValue(values, "category"); ok {
		f.Category = &v
	}
	if v, ok := formValue(values, "phone"); ok {
		f.Phone = &v
	}
	if v, ok := formValue(values, "new"); ok {
		b := v == "true" || v == "1"
		f.IsNew = &b
	}
	if v, ok := formValue(values, "negociable"); ok {
		b := v == "true" || v == "1"
		f.IsNegotiable = &b
	}
	if v, ok := formValue(values, "price"); ok {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid price")
		}
		f.Price = &price
	}
	return f, nil
}

func formValue(values map[string][]string, key string) (string, bool) {
	if vs, ok := values[key]; ok && len(vs) > 0 {
		return vs[0], true
	}
	return "", false
}

// formUploads opens the "file" multipart parts. The returned close func
// must run after the store is done reading them.
func formUploads(c echo.Context) ([]listing.Upload, func(), error) {
	form, err := c.MultipartForm()
	if err != nil {
		// no multipart body means no images, which is fine
		return nil, func() {}, nil
	}

	files := form.File["file"]
	if len(files) > listing.MaxImages {
		return nil, func() {}, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("at most %d images allowed", listing.MaxImages))
	}

	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	uploads := make([]listing.Upload, 0, len(files))
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
		}
		opened = append(opened, src)
		uploads = append(uploads, listing.Upload{Filename: fh.Filename, Reader: src})
	}
	return uploads, closeAll, nil
}

func (h *ListingHandler) publish(c echo.Context, event map[string]interface{}) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "listing_events", fmt.Sprint(event["listing_id"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func (h *ListingHandler) index(c echo.Context, op func(context.Context) error) {
	if h.Indexer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := op(ctx); err != nil {
		logging.FromContext(ctx).Warn("search_index_failed", "error", err)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
