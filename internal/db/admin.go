package db

import (
	"net/http"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/rovernav/internal/httputil"
	"github.com/banshee-data/rovernav/internal/monitoring"
)

// DiscoveriesGeoJSON renders the latest discovery per cell as a GeoJSON
// feature collection. Grid X/Y become point coordinates.
func (db *DB) DiscoveriesGeoJSON() ([]byte, error) {
	latest, err := db.LatestByCell()
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, d := range latest {
		f := geojson.NewFeature(orb.Point{float64(d.X), float64(d.Y)})
		f.ID = d.ID
		f.Properties["terrain"] = d.Terrain
		f.Properties["science"] = d.Science
		f.Properties["source"] = d.Source
		f.Properties["recorded_at"] = d.RecordedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		fc.Append(f)
	}
	return fc.MarshalJSON()
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logger().Error("failed to create tailsql server", "error", err)
	} else {
		tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
			Label: "Rover ledger",
		})
		// mount the tailSQL server on the debug /tailsql path
		debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	}

	debug.HandleFunc("discoveries.geojson", "Latest discovery per cell as GeoJSON", func(w http.ResponseWriter, r *http.Request) {
		body, err := db.DiscoveriesGeoJSON()
		if err != nil {
			httputil.InternalServerError(w, "failed to load discoveries")
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Write(body)
	})

	debug.HandleFunc("planner-runs", "Recent planner runs", func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				httputil.BadRequest(w, "invalid limit")
				return
			}
			limit = n
		}
		runs, err := db.PlannerRuns(limit)
		if err != nil {
			httputil.InternalServerError(w, "failed to load planner runs")
			return
		}
		httputil.WriteJSONOK(w, runs)
	})
}
