package restapi

import "net/http"

func (api *RestAPI) livePositionsHandler(w http.ResponseWriter, r *http.Request) {
	api.sendJSON(w, r, api.Service.ListLivePositions())
}
