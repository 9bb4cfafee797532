package handler

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/jobboard/backend/docs"
)

type openAPIDocument struct {
	body []byte
	etag string
}

// rendered once; the template has no per-request fields
var loadOpenAPIDocument = sync.OnceValue(func() openAPIDocument {
	body := []byte(docs.SwaggerInfo.ReadDoc())
	h := fnv.New64a()
	_, _ = h.Write(body)
	return openAPIDocument{body: body, etag: fmt.Sprintf(`"%x"`, h.Sum64())}
})

// OpenAPIDoc serves the API document with an ETag so clients can revalidate.
func OpenAPIDoc(c *gin.Context) {
	doc := loadOpenAPIDocument()

	c.Header("ETag", doc.etag)
	c.Header("Cache-Control", "no-cache")
	if c.GetHeader("If-None-Match") == doc.etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc.body)
}
