package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/liunix61/uptane-server/internal/domain"
	"github.com/liunix61/uptane-server/internal/usecase"
)

const (
	NamespaceHeader   = "X-Namespace"
	AdminKeyHeader    = "X-Admin-Key"
	archiveFilename   = "provisioning-credentials.zip"
	archiveMediaType  = "application/zip"
	metadataMediaType = "application/json"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type namespaceResponse struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func buildNamespaceResponse(ns domain.Namespace) namespaceResponse {
	return namespaceResponse{
		ID:        ns.ID,
		CreatedAt: ns.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: ns.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// namespaceFromRequest reads the namespace from the path, falling back to
// the X-Namespace header used by the unscoped download routes.
func namespaceFromRequest(c *gin.Context) string {
	if ns := c.Param("namespace_id"); ns != "" {
		return ns
	}
	return strings.TrimSpace(c.GetHeader(NamespaceHeader))
}

// objectIDFromRequest derives the object id from the prefix and suffix
// path segments. Routes without them address the summary object.
func objectIDFromRequest(c *gin.Context) (string, error) {
	prefix, suffix := c.Param("prefix"), c.Param("suffix")
	if prefix == "" && suffix == "" {
		return domain.SummaryObjectID, nil
	}
	return domain.ObjectIDFromParts(prefix, suffix)
}

func (s *Server) handleUpload(c *gin.Context) {
	if s.objects == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	objectID, err := objectIDFromRequest(c)
	if err != nil {
		writeError(c, err)
		return
	}
	declared := c.GetHeader("Content-Length")
	if declared == "" && c.Request.ContentLength > 0 {
		declared = strconv.FormatInt(c.Request.ContentLength, 10)
	}
	if err := s.objects.Upload(c.Request.Context(), namespaceFromRequest(c), objectID, c.Request.Body, declared); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExists(c *gin.Context) {
	if s.objects == nil {
		c.Status(http.StatusNotFound)
		return
	}
	objectID, err := objectIDFromRequest(c)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	ok, err := s.objects.Exists(c.Request.Context(), namespaceFromRequest(c), objectID)
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("object existence check failed")
		c.Status(http.StatusInternalServerError)
		return
	}
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleDownload(c *gin.Context) {
	if s.objects == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	namespaceID := namespaceFromRequest(c)
	if namespaceID == "" {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION", "namespace is required")
		return
	}
	objectID, err := objectIDFromRequest(c)
	if err != nil {
		writeError(c, err)
		return
	}
	content, err := s.objects.Download(c.Request.Context(), namespaceID, objectID)
	if err != nil {
		writeError(c, err)
		return
	}
	defer content.Body.Close()
	c.DataFromReader(http.StatusOK, content.Size, content.ContentType, content.Body, nil)
}

func (s *Server) handleCreateNamespace(c *gin.Context) {
	if s.namespaces == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	ns, err := s.namespaces.Create(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildNamespaceResponse(ns))
}

func (s *Server) handleListNamespaces(c *gin.Context) {
	if s.namespaces == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	list, err := s.namespaces.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]namespaceResponse, 0, len(list))
	for _, ns := range list {
		out = append(out, buildNamespaceResponse(ns))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDeleteNamespace(c *gin.Context) {
	if s.namespaces == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	namespaceID := c.Param("namespace_id")
	if err := s.namespaces.Delete(c.Request.Context(), namespaceID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": namespaceID})
}

func (s *Server) handleProvisioningCredentials(c *gin.Context) {
	if s.provisioning == nil {
		writeError(c, usecase.ErrProvisioningDisabled)
		return
	}
	archive, err := s.provisioning.Issue(c.Request.Context(), c.Param("namespace_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer clear(archive)
	c.Header("Content-Disposition", `attachment; filename="`+archiveFilename+`"`)
	c.Data(http.StatusOK, archiveMediaType, archive)
}

func (s *Server) handleRootMetadata(c *gin.Context) {
	if s.namespaces == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	repo, err := domain.ParseRepoKind(c.Param("repo"))
	if err != nil {
		writeError(c, err)
		return
	}
	md, err := s.namespaces.RootMetadata(c.Request.Context(), c.Param("namespace_id"), repo)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, metadataMediaType, md.Document)
}

// requireAdmin guards the namespace routes when an admin key is configured.
func (s *Server) requireAdmin(c *gin.Context) {
	if s.adminAPIKey == "" {
		return
	}
	key := c.GetHeader(AdminKeyHeader)
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		c.Abort()
	}
}

// writeError maps domain errors onto HTTP statuses. Order matters: a
// download of an object in an unknown namespace wraps both ErrNotFound and
// ErrNamespaceNotFound and must surface as 404.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "VALIDATION"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrNamespaceNotFound):
		status, code = http.StatusBadRequest, "NAMESPACE_NOT_FOUND"
	case errors.Is(err, usecase.ErrProvisioningDisabled):
		status, code = http.StatusNotFound, "PROVISIONING_DISABLED"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrConsistencyFault):
		status, code = http.StatusInternalServerError, "CONSISTENCY_FAULT"
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Ctx(c.Request.Context()).Error().Err(err).Str("code", code).Msg("request failed")
		message = http.StatusText(status)
	}
	writeErrorCode(c, status, code, message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
