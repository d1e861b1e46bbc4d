// Package adminhttp exposes a read-only introspection surface over a
// leasedb.Database: lease, host, and pool listings plus a whole-database
// debug dump. It never accepts DHCP traffic or OMAPI commands (both are
// explicit Non-goals) — it only renders what the registries already hold,
// the way the teacher's routes/handlers packages serve its DHCP/TFTP
// management UI.
package adminhttp

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"leasedb"
)

// NewRouter builds the admin HTTP router over db.
func NewRouter(db *leasedb.Database) *mux.Router {
	h := &handlers{db: db}
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/leases", h.listLeases).Methods("GET").Name("Leases")
	router.HandleFunc("/hosts", h.listHosts).Methods("GET").Name("Hosts")
	router.HandleFunc("/pools", h.listPools).Methods("GET").Name("Pools")
	router.HandleFunc("/debug/dump", h.dump).Methods("GET").Name("Dump")
	return router
}

type handlers struct {
	db *leasedb.Database
}

// leaseView is the JSON projection of a lease.Lease returned by /leases.
type leaseView struct {
	IP       string `json:"ip"`
	State    string `json:"state"`
	Ends     string `json:"ends"`
	Pool     string `json:"pool"`
	Host     string `json:"host,omitempty"`
	Class    string `json:"class,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

func (h *handlers) listLeases(w http.ResponseWriter, r *http.Request) {
	leases := h.db.Leases.All()
	out := make([]leaseView, 0, len(leases))
	for _, l := range leases {
		out = append(out, leaseView{
			IP:       l.IP.String(),
			State:    l.BindingState.String(),
			Ends:     l.Ends.UTC().Format(http.TimeFormat),
			Pool:     string(l.Pool),
			Host:     string(l.Host),
			Class:    string(l.Class),
			Hostname: l.ClientHostname,
		})
	}
	writeJSON(w, out)
}

// hostView is the JSON projection of a host.Host returned by /hosts.
type hostView struct {
	Name    string `json:"name"`
	Static  bool   `json:"static"`
	Dynamic bool   `json:"dynamic"`
	Deleted bool   `json:"deleted"`
}

func (h *handlers) listHosts(w http.ResponseWriter, r *http.Request) {
	hosts := h.db.Hosts.All()
	out := make([]hostView, 0, len(hosts))
	for _, host := range hosts {
		out = append(out, hostView{
			Name:    host.Name,
			Static:  host.Static(),
			Dynamic: host.Dynamic(),
			Deleted: host.Deleted(),
		})
	}
	writeJSON(w, out)
}

// poolView is the JSON projection of a topology.Pool returned by /pools.
type poolView struct {
	ID           string `json:"id"`
	LeaseCount   int    `json:"lease_count"`
	FreeLeases   int    `json:"free_leases"`
	BackupLeases int    `json:"backup_leases"`
}

func (h *handlers) listPools(w http.ResponseWriter, r *http.Request) {
	pools := h.db.Topology.Pools()
	out := make([]poolView, 0, len(pools))
	for _, p := range pools {
		out = append(out, poolView{
			ID:           string(p.ID),
			LeaseCount:   p.LeaseCount,
			FreeLeases:   p.FreeLeases,
			BackupLeases: p.BackupLeases,
		})
	}
	writeJSON(w, out)
}

func (h *handlers) dump(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if err := h.db.Dump(w); err != nil {
		http.Error(w, "failed to dump database: "+err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
