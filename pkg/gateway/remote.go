package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/wzshiming/lfspages/internal/utils"
	"github.com/wzshiming/lfspages/pkg/lfs"
)

// objectCacheTTL is how long fetched objects may be cached; an oid's bytes never change.
const objectCacheTTL = 365 * 24 * time.Hour

// fromRemote negotiates a download with the LFS server and fetches the object.
func (h *Handler) fromRemote(r *http.Request, ptr *lfs.Pointer) (*http.Response, error) {
	ctx := r.Context()

	action, err := h.client.Download(ctx, h.lfsURL, *ptr)
	if err != nil {
		return nil, err
	}

	// Client headers such as Range or If-None-Match win over the action's.
	req, err := action.Request(ctx, r.Method, utils.EndToEndHeader(r.Header))
	if err != nil {
		return nil, err
	}

	resp, err := h.platform.Fetch(req, objectCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ptr.Oid, err)
	}
	return resp, nil
}
