// Package servicenow provides the ServiceNow REST client and the QA tools
// built on it: ticket lookup, catalog item validation, and UAT clone
// freshness checks.
package servicenow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal ServiceNow table API client.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// Config holds ServiceNow connection settings.
type Config struct {
	// InstanceURL is the ServiceNow instance URL
	// (e.g. https://dev12345.service-now.com).
	InstanceURL string
	// Username for basic auth.
	Username string
	// Password for basic auth.
	Password string
	// Timeout for API requests. Default: 30s.
	Timeout time.Duration
}

// NewClient creates a new ServiceNow API client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.InstanceURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Incident represents a ServiceNow incident record.
type Incident struct {
	SysID            string `json:"sys_id"`
	Number           string `json:"number"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	State            string `json:"state"`
	Priority         string `json:"priority"`
	AssignedTo       string `json:"assigned_to"`
	AssignmentGroup  string `json:"assignment_group"`
	CallerID         string `json:"caller_id"`
	Category         string `json:"category"`
	OpenedAt         string `json:"opened_at"`
	ResolvedAt       string `json:"resolved_at"`
}

// IncidentState maps state numbers to human-readable names.
var IncidentState = map[string]string{
	"1": "New",
	"2": "In Progress",
	"3": "On Hold",
	"6": "Resolved",
	"7": "Closed",
	"8": "Cancelled",
}

// IncidentPriority maps priority numbers to names.
var IncidentPriority = map[string]string{
	"1": "Critical",
	"2": "High",
	"3": "Moderate",
	"4": "Low",
	"5": "Planning",
}

// GetIncident retrieves a single incident by number or sys_id.
func (c *Client) GetIncident(ctx context.Context, idOrNumber string) (*Incident, error) {
	params := url.Values{}
	params.Set("sysparm_display_value", "true")
	params.Set("sysparm_limit", "1")

	// sys_ids are 32 hex characters, anything else is a ticket number.
	if len(idOrNumber) == 32 {
		params.Set("sysparm_query", "sys_id="+idOrNumber)
	} else {
		params.Set("sysparm_query", "number="+idOrNumber)
	}

	var result struct {
		Result []Incident `json:"result"`
	}
	if err := c.get(ctx, "/api/now/table/incident", params, &result); err != nil {
		return nil, err
	}
	if len(result.Result) == 0 {
		return nil, fmt.Errorf("incident not found: %s", idOrNumber)
	}
	return &result.Result[0], nil
}

// SearchIncidentsOptions specifies incident search filters.
type SearchIncidentsOptions struct {
	Text            string
	State           string
	Priority        string
	AssignmentGroup string
	Limit           int
}

// SearchIncidents retrieves incidents matching the given filters, most
// recently opened first.
func (c *Client) SearchIncidents(ctx context.Context, opts SearchIncidentsOptions) ([]Incident, error) {
	params := url.Values{}
	params.Set("sysparm_display_value", "true")

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	params.Set("sysparm_limit", fmt.Sprintf("%d", limit))

	var queryParts []string
	if opts.Text != "" {
		queryParts = append(queryParts, "short_descriptionLIKE"+opts.Text)
	}
	if opts.State != "" {
		queryParts = append(queryParts, "state="+opts.State)
	}
	if opts.Priority != "" {
		queryParts = append(queryParts, "priority="+opts.Priority)
	}
	if opts.AssignmentGroup != "" {
		queryParts = append(queryParts, "assignment_group="+opts.AssignmentGroup)
	}
	queryParts = append(queryParts, "ORDERBYDESCopened_at")
	params.Set("sysparm_query", strings.Join(queryParts, "^"))

	var result struct {
		Result []Incident `json:"result"`
	}
	if err := c.get(ctx, "/api/now/table/incident", params, &result); err != nil {
		return nil, err
	}
	return result.Result, nil
}

// CatalogItem is a subset of an sc_cat_item record.
type CatalogItem struct {
	SysID            string `json:"sys_id"`
	Name             string `json:"name"`
	ShortDescription string `json:"short_description"`
	Active           string `json:"active"`
	Category         string `json:"category"`
	Workflow         string `json:"workflow"`
	FlowDesignerFlow string `json:"flow_designer_flow"`
	Icon             string `json:"icon"`
	Picture          string `json:"picture"`
	UpdatedOn        string `json:"sys_updated_on"`
}

// CatalogVariable is a subset of an item_option_new record.
type CatalogVariable struct {
	Name         string `json:"name"`
	QuestionText string `json:"question_text"`
	Active       string `json:"active"`
	Mandatory    string `json:"mandatory"`
	HelpText     string `json:"help_text"`
}

// GetCatalogItem retrieves a catalog item by sys_id or exact name.
func (c *Client) GetCatalogItem(ctx context.Context, identifier string) (*CatalogItem, error) {
	params := url.Values{}
	params.Set("sysparm_limit", "1")
	if len(identifier) == 32 {
		params.Set("sysparm_query", "sys_id="+identifier)
	} else {
		params.Set("sysparm_query", "name="+identifier)
	}

	var result struct {
		Result []CatalogItem `json:"result"`
	}
	if err := c.get(ctx, "/api/now/table/sc_cat_item", params, &result); err != nil {
		return nil, err
	}
	if len(result.Result) == 0 {
		return nil, fmt.Errorf("catalog item not found: %s", identifier)
	}
	return &result.Result[0], nil
}

// GetCatalogItemVariables retrieves the variables attached to a catalog item.
func (c *Client) GetCatalogItemVariables(ctx context.Context, itemSysID string) ([]CatalogVariable, error) {
	params := url.Values{}
	params.Set("sysparm_query", "cat_item="+itemSysID)
	params.Set("sysparm_limit", "100")

	var result struct {
		Result []CatalogVariable `json:"result"`
	}
	if err := c.get(ctx, "/api/now/table/item_option_new", params, &result); err != nil {
		return nil, err
	}
	return result.Result, nil
}

// CloneRecord is a row from the instance clone history tables.
type CloneRecord struct {
	SysID             string `json:"sys_id"`
	SourceInstance    string `json:"source_instance"`
	TargetInstance    string `json:"target_instance"`
	State             string `json:"state"`
	CreatedOn         string `json:"sys_created_on"`
	LastCompletedTime string `json:"last_completed_time"`
	Completed         string `json:"completed"`
}

// Timestamp returns the best available completion time for the record.
func (r CloneRecord) Timestamp() string {
	if r.LastCompletedTime != "" {
		return r.LastCompletedTime
	}
	if r.Completed != "" {
		return r.Completed
	}
	return r.CreatedOn
}

// LastCloneRecord returns the most recent completed clone into the target
// instance. sys_clone_history is tried first; instances without it fall
// back to sn_instance_clone_request.
func (c *Client) LastCloneRecord(ctx context.Context, targetInstance string) (*CloneRecord, error) {
	params := url.Values{}
	params.Set("sysparm_limit", "1")
	params.Set("sysparm_query", "target_instance="+targetInstance+"^state=completed^ORDERBYDESClast_completed_time")
	params.Set("sysparm_fields", "sys_id,source_instance,target_instance,state,sys_created_on,last_completed_time")

	var result struct {
		Result []CloneRecord `json:"result"`
	}
	err := c.get(ctx, "/api/now/table/sys_clone_history", params, &result)
	if err == nil && len(result.Result) > 0 {
		return &result.Result[0], nil
	}
	if err != nil && !strings.Contains(err.Error(), "Invalid table") {
		return nil, err
	}

	fallback := url.Values{}
	fallback.Set("sysparm_limit", "1")
	fallback.Set("sysparm_query", "target_instance.instance_name="+targetInstance+"^state=Completed^ORDERBYDESCcompleted")
	fallback.Set("sysparm_fields", "sys_id,target_instance,source_instance,state,sys_created_on,completed")

	result.Result = nil
	if err := c.get(ctx, "/api/now/table/sn_instance_clone_request", fallback, &result); err != nil {
		return nil, err
	}
	if len(result.Result) == 0 {
		return nil, fmt.Errorf("no clone history found for target %q", targetInstance)
	}
	return &result.Result[0], nil
}

// Ping verifies the instance is reachable and credentials work. Used as a
// health probe.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	params := url.Values{}
	params.Set("sysparm_limit", "1")
	params.Set("sysparm_fields", "sys_id")

	var result struct {
		Result []struct {
			SysID string `json:"sys_id"`
		} `json:"result"`
	}
	if err := c.get(ctx, "/api/now/table/incident", params, &result); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	fullURL := c.baseURL + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			body = []byte("(failed to read response body)")
		}
		return fmt.Errorf("ServiceNow API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// FormatIncident returns a human-readable summary for an incident.
func FormatIncident(inc *Incident) string {
	state := inc.State
	if name, ok := IncidentState[inc.State]; ok {
		state = name
	}
	priority := inc.Priority
	if name, ok := IncidentPriority[inc.Priority]; ok {
		priority = name
	}
	return fmt.Sprintf("%s: %s\nPriority: %s | State: %s\nAssigned to: %s\nOpened: %s",
		inc.Number,
		inc.ShortDescription,
		priority,
		state,
		inc.AssignedTo,
		inc.OpenedAt,
	)
}
