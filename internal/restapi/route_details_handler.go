package restapi

import "net/http"

func (api *RestAPI) routeDetailsHandler(w http.ResponseWriter, r *http.Request) {
	if api.Service.Reference() == nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "reference data not loaded yet")
		return
	}

	details, ok := api.Service.GetRouteDetails(r.PathValue("shortName"))
	if !ok {
		api.sendNotFound(w, r)
		return
	}
	api.sendJSON(w, r, details)
}
