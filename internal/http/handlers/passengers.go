package handlers

import (
	"net/http"
	"strings"
	"time"

	"logbook/internal/domain/models"
	"logbook/internal/repositories"
	"logbook/internal/services"

	"github.com/gin-gonic/gin"
)

// maxImportBytes bounds uploaded roster files.
const maxImportBytes = 4 << 20

// GET /api/passengers?q=
func (a *API) GetPassengers(c *gin.Context) {
	list, err := repositories.NewPassengerRepository(a.Facade).List(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if q := strings.ToLower(strings.TrimSpace(c.Query("q"))); q != "" {
		filtered := list[:0]
		for _, p := range list {
			if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Cedula), q) {
				filtered = append(filtered, p)
			}
		}
		list = filtered
	}
	c.JSON(http.StatusOK, list)
}

// GET /api/passengers/:id
func (a *API) GetPassenger(c *gin.Context) {
	p, err := repositories.NewPassengerRepository(a.Facade).Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// POST /api/passengers
func (a *API) CreatePassenger(c *gin.Context) {
	var in services.PassengerInput
	if !bindBody(c, &in) {
		return
	}
	p, err := a.passengers(c).Create(c.Request.Context(), in)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// PUT /api/passengers/:id
func (a *API) UpdatePassenger(c *gin.Context) {
	var upd models.PassengerUpdate
	if !bindBody(c, &upd) {
		return
	}
	p, err := a.passengers(c).Update(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DELETE /api/passengers/:id
func (a *API) DeletePassenger(c *gin.Context) {
	if err := a.passengers(c).Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "passenger deleted"})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// POST /api/passengers/bulk-delete
func (a *API) DeletePassengers(c *gin.Context) {
	var req bulkDeleteRequest
	if !bindBody(c, &req) {
		return
	}
	n, err := a.passengers(c).DeleteMany(c.Request.Context(), req.IDs)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// POST /api/passengers/import (multipart field "file")
func (a *API) ImportPassengers(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "file_required", "multipart field \"file\" is required", gin.H{"reason": err.Error()})
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "file_unreadable", "uploaded file could not be opened", gin.H{"reason": err.Error()})
		return
	}
	defer f.Close()

	candidates, err := services.ReadCSV(f)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	report, err := a.importer(c).Import(c.Request.Context(), candidates)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /api/passengers/:id/identity returns the blob printed on the passenger's card.
func (a *API) GetPassengerIdentity(c *gin.Context) {
	p, err := repositories.NewPassengerRepository(a.Facade).Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	blob := p.QRPayload
	if blob == "" {
		if blob, err = services.EncodeIdentity(p, time.Now()); err != nil {
			RespondDomainError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"passengerId": p.ID, "payload": blob})
}
