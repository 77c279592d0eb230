package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Brownie44l1/food-api/internal/model"
	"github.com/Brownie44l1/food-api/internal/prediction"
)

type IndexResponse struct {
	Message    string `json:"message"`
	Endpoint   string `json:"endpoint"`
	Method     string `json:"method"`
	Parameters string `json:"parameters"`
}

// AnalyzeResponse reports detections by name. Nutrition fields are null when the nutrition
// backend could not be queried.
type AnalyzeResponse struct {
	Labels    []string          `json:"labels"`
	Scores    []float32         `json:"scores"`
	Boxes     []model.Box       `json:"boxes"`
	Nutrition NutritionResponse `json:"nutrition"`
}

type NutritionResponse struct {
	Calories []*float64 `json:"calories"`
	Protein  []*float64 `json:"protein"`
	Fat      []*float64 `json:"fat"`
	Carbs    []*float64 `json:"carbs"`
	Fiber    []*float64 `json:"fiber"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func newAnalyzeResponse(result prediction.Result) AnalyzeResponse {
	resp := AnalyzeResponse{
		Labels: result.Names,
		Scores: result.Scores,
		Boxes:  result.Boxes,
	}
	if facts := result.Nutrition; facts != nil {
		resp.Nutrition = NutritionResponse{
			Calories: facts.Calories,
			Protein:  facts.Protein,
			Fat:      facts.Fat,
			Carbs:    facts.Carbs,
			Fiber:    facts.Fiber,
		}
	}
	return resp
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
