package daemon

import "net/http"

// registerRoutes sets up all API routes on a new ServeMux and returns it.
func (d *Daemon) registerRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health.
	mux.HandleFunc("GET /health", d.health)

	// Commands.
	mux.HandleFunc("POST /scan", d.scan)
	mux.HandleFunc("POST /sweep", d.sweep)
	mux.HandleFunc("POST /nudges", d.nudgeAll)
	mux.HandleFunc("POST /claims/{id}/nudge", d.nudgeClaim)
	mux.HandleFunc("POST /claims/{id}/release", d.releaseClaim)
	mux.HandleFunc("POST /claims/{id}/complete", d.completeClaim)

	// Queries.
	mux.HandleFunc("GET /claims", d.listClaims)
	mux.HandleFunc("GET /claims/{id}", d.getClaim)
	mux.HandleFunc("GET /claims/{id}/activity", d.listClaimActivity)
	mux.HandleFunc("GET /nudgeable", d.listNudgeable)
	mux.HandleFunc("GET /stale", d.listStale)
	mux.HandleFunc("GET /board", d.board)
	mux.HandleFunc("GET /board/top", d.boardTop)
	mux.HandleFunc("GET /board/worst", d.boardWorst)
	mux.HandleFunc("GET /repos", d.listRepos)
	mux.HandleFunc("GET /activity", d.recentActivity)

	return mux
}
