package storage

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectURL(t *testing.T) {
	u := &url.URL{Scheme: "https", Host: "minio.example.com:9000"}
	assert.Equal(t, "https://minio.example.com:9000/geo/analyses/a1/l1.geojson",
		objectURL(u, "geo", "analyses/a1/l1.geojson"))

	assert.Equal(t, "http://localhost:9000/geo/x.json", objectURL(&url.URL{Host: "localhost:9000"}, "geo", "/x.json"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/geo+json", contentTypeFor("analyses/a/b.geojson"))
	assert.Equal(t, "application/json", contentTypeFor("meta.json"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("blob"))
}
