package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"marketplace-api/internal/models"
	"marketplace-api/internal/storage"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	imagesField    = "images"
	maxImageFiles  = 10
	multipartSlack = 1 << 20
)

type productService interface {
	CreateProduct(ctx context.Context, in *models.ProductInput, files []storage.File) (*models.Product, error)
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	UpdateProduct(ctx context.Context, id string, upd *models.ProductUpdate, files []storage.File) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

type ProductHandler struct {
	products       productService
	maxUploadBytes int64
	logger         zerolog.Logger
}

func NewProductHandler(products productService, maxUploadBytes int64, logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		products:       products,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in models.ProductInput
	var files []storage.File

	if isMultipart(r) {
		form, ok := h.parseMultipart(w, r)
		if !ok {
			return
		}
		defer form.RemoveAll()

		in.Name = url.Values(form.Value).Get("name")
		in.Description = url.Values(form.Value).Get("description")
		in.Category = url.Values(form.Value).Get("category")
		if v, present := formValue(form, "price"); present {
			price, err := parsePrice(v)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, "validation_failed", err.Error())
				return
			}
			in.Price = price
		}
		if v, present := formValue(form, "stock"); present {
			stock, err := parseStock(v)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, "validation_failed", err.Error())
				return
			}
			in.Stock = stock
		}

		var closeFiles func()
		files, closeFiles, ok = h.openImages(w, form)
		if !ok {
			return
		}
		defer closeFiles()
	} else if !decodeJSON(w, r, &in, false) {
		return
	}

	product, err := h.products.CreateProduct(r.Context(), &in, files)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ProductFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	products, err := h.products.ListProducts(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var upd models.ProductUpdate
	var files []storage.File

	if isMultipart(r) {
		form, ok := h.parseMultipart(w, r)
		if !ok {
			return
		}
		defer form.RemoveAll()

		upd.Name = optionalString(form, "name")
		upd.Description = optionalString(form, "description")
		upd.Category = optionalString(form, "category")
		// Blank numeric fields mean "unchanged" so a full form post does not
		// zero price or stock.
		if v, present := formValue(form, "price"); present && strings.TrimSpace(v) != "" {
			price, err := parsePrice(v)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, "validation_failed", err.Error())
				return
			}
			upd.Price = &price
		}
		if v, present := formValue(form, "stock"); present && strings.TrimSpace(v) != "" {
			stock, err := parseStock(v)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, "validation_failed", err.Error())
				return
			}
			upd.Stock = &stock
		}

		var closeFiles func()
		files, closeFiles, ok = h.openImages(w, form)
		if !ok {
			return
		}
		defer closeFiles()
	} else if !decodeJSON(w, r, &upd, false) {
		return
	}

	product, err := h.products.UpdateProduct(r.Context(), mux.Vars(r)["id"], &upd, files)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.DeleteProduct(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, models.MessageResponse{Message: "Product deleted"})
}

func (h *ProductHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes*maxImageFiles+multipartSlack)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body is too large")
			return nil, false
		}
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid multipart form")
		return nil, false
	}
	return r.MultipartForm, true
}

// openImages opens every uploaded image. The returned func closes them.
func (h *ProductHandler) openImages(w http.ResponseWriter, form *multipart.Form) ([]storage.File, func(), bool) {
	headers := form.File[imagesField]
	if len(headers) > maxImageFiles {
		respondWithError(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("At most %d images are allowed", maxImageFiles))
		return nil, nil, false
	}

	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	files := make([]storage.File, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > h.maxUploadBytes {
			closeAll()
			respondWithError(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("File %s is too large", fh.Filename))
			return nil, nil, false
		}
		f, err := fh.Open()
		if err != nil {
			closeAll()
			h.logger.Error().Err(err).Str("file", fh.Filename).Msg("Error opening uploaded file")
			respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid uploaded file")
			return nil, nil, false
		}
		opened = append(opened, f)
		files = append(files, storage.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Reader:      f,
		})
	}
	return files, closeAll, true
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func formValue(form *multipart.Form, key string) (string, bool) {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func optionalString(form *multipart.Form, key string) *string {
	v, ok := formValue(form, key)
	if !ok {
		return nil
	}
	return &v
}

func parsePrice(v string) (decimal.Decimal, error) {
	if strings.TrimSpace(v) == "" {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, errors.New("price must be a number")
	}
	return price, nil
}

func parseStock(v string) (int, error) {
	if strings.TrimSpace(v) == "" {
		return 0, nil
	}
	stock, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.New("stock must be an integer")
	}
	return stock, nil
}
