package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/map/groups>; rel="groups"`,
		`</api/v1/map/layers>; rel="layers"`,
		`</api/v1/watches>; rel="watches"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/map/events>; rel="events"`,
	},
	"/api/v1/map/groups": {
		`</api/v1/map/layers>; rel="layers"`,
		`</api/v1/map/base-layer>; rel="base-layer"`,
	},
	"/api/v1/map/groups/{id}/visibility": {
		`</api/v1/map/groups>; rel="collection"`,
	},
	"/api/v1/map/layers": {
		`</api/v1/map/groups>; rel="groups"`,
	},
	"/api/v1/map/selection": {
		`</api/v1/map/mode>; rel="mode"`,
		`</api/v1/map/hover>; rel="hover"`,
	},
	"/api/v1/map/draw": {
		`</api/v1/map/draw/finish>; rel="finish"`,
		`</api/v1/watches>; rel="watches"`,
	},
	"/api/v1/area-watches": {
		`</api/v1/watches>; rel="client"`,
	},
	"/api/v1/area-watches/{id}": {
		`</api/v1/area-watches>; rel="collection"`,
	},
	"/api/v1/watches": {
		`</api/v1/session>; rel="session"`,
		`</api/v1/map/draw>; rel="draw"`,
	},
	"/api/v1/watches/{id}": {
		`</api/v1/watches>; rel="collection"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		return v, nil
	}
}
