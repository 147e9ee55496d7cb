// Package types holds the V1 wire models shared by the HTTP surface, the
// task aggregate and the remote adapter. Field names follow the tracker
// wire format: snake_case, timestamps as seconds since the Unix epoch.
package types

// V1Device is an opaque device descriptor. It is persisted encrypted and
// never written to logs.
type V1Device struct {
	Name   string         `json:"name,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// V1DeviceType describes a class of devices.
type V1DeviceType struct {
	Name string `json:"name"`
}

// V1EnvState is an observation of the environment, with an ordered sequence
// of image references (URL or data URI).
type V1EnvState struct {
	Images []string `json:"images,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// V1Action is a named action with parameters.
type V1Action struct {
	Name       string         `json:"name" binding:"required"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// V1ToolRef references the tool an action was executed with.
type V1ToolRef struct {
	Module  string `json:"module"`
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
}

// V1Review is one party's binary judgement of a task, action or annotation.
type V1Review struct {
	ID           string  `json:"id,omitempty"`
	Reviewer     string  `json:"reviewer"`
	ReviewerType string  `json:"reviewer_type,omitempty"`
	Approved     bool    `json:"approved"`
	Reason       string  `json:"reason,omitempty"`
	Correction   string  `json:"correction,omitempty"`
	ResourceType string  `json:"resource_type,omitempty"`
	ResourceID   string  `json:"resource_id,omitempty"`
	Created      float64 `json:"created,omitempty"`
	Updated      float64 `json:"updated,omitempty"`
}

// V1ReviewRequirement declares how many parties from the listed sets must
// fully review a task.
type V1ReviewRequirement struct {
	ID             string   `json:"id,omitempty"`
	TaskID         string   `json:"task_id,omitempty"`
	NumberRequired int      `json:"number_required"`
	Users          []string `json:"users,omitempty"`
	Agents         []string `json:"agents,omitempty"`
	Groups         []string `json:"groups,omitempty"`
	Types          []string `json:"types,omitempty"`
	Created        float64  `json:"created,omitempty"`
	Updated        float64  `json:"updated,omitempty"`
}

// V1PendingReviewers lists the distinct parties still owing a review on a task.
type V1PendingReviewers struct {
	TaskID string   `json:"task_id"`
	Users  []string `json:"users"`
	Agents []string `json:"agents"`
}

// V1PendingReviews lists the task ids a party is pending on.
type V1PendingReviews struct {
	Tasks []string `json:"tasks"`
}

// V1CreateReview is the body of a task or action review call. Reviewer
// defaults to the calling principal.
type V1CreateReview struct {
	Approved     *bool  `json:"approved" binding:"required"`
	Reviewer     string `json:"reviewer,omitempty"`
	ReviewerType string `json:"reviewer_type,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Correction   string `json:"correction,omitempty"`
}

// V1ReviewMany bulk-applies a review across a task's actions.
type V1ReviewMany struct {
	Reviewer      string `json:"reviewer,omitempty"`
	ReviewerType  string `json:"reviewer_type,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Correction    string `json:"correction,omitempty"`
	IncludeHidden bool   `json:"include_hidden,omitempty"`
}

// V1RoleMessage is a single message in a role thread.
type V1RoleMessage struct {
	ID       string         `json:"id,omitempty"`
	ThreadID string         `json:"thread_id,omitempty"`
	Role     string         `json:"role"`
	Text     string         `json:"text"`
	Images   []string       `json:"images,omitempty"`
	Private  bool           `json:"private,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Created  float64        `json:"created,omitempty"`
}

// V1RoleThread is a conversation thread attached to a task.
type V1RoleThread struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Public   bool            `json:"public,omitempty"`
	OwnerID  string          `json:"owner_id,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	Messages []V1RoleMessage `json:"messages,omitempty"`
	Created  float64         `json:"created,omitempty"`
}

// V1RoleThreads wraps a thread list.
type V1RoleThreads struct {
	Threads []V1RoleThread `json:"threads"`
}

// V1Prompt is one request/response pair exchanged with a language model.
type V1Prompt struct {
	ID             string         `json:"id,omitempty"`
	Namespace      string         `json:"namespace,omitempty"`
	Thread         V1RoleThread   `json:"thread"`
	Response       V1RoleMessage  `json:"response"`
	ResponseSchema map[string]any `json:"response_schema,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Approved       bool           `json:"approved,omitempty"`
	Flagged        bool           `json:"flagged,omitempty"`
	OwnerID        string         `json:"owner_id,omitempty"`
	AgentID        string         `json:"agent_id,omitempty"`
	Model          string         `json:"model,omitempty"`
	Created        float64        `json:"created,omitempty"`
}

// V1Prompts wraps a prompt list.
type V1Prompts struct {
	Prompts []V1Prompt `json:"prompts"`
}

// V1AnnotationReviewable is a typed annotation attached to an action event.
type V1AnnotationReviewable struct {
	ID            string     `json:"id,omitempty"`
	Key           string     `json:"key" binding:"required"`
	Value         any        `json:"value,omitempty"`
	Annotator     string     `json:"annotator,omitempty"`
	AnnotatorType string     `json:"annotator_type,omitempty"`
	Reviews       []V1Review `json:"reviews,omitempty"`
	Created       float64    `json:"created,omitempty"`
}

// V1CreateAnnotationReview reviews an annotation.
type V1CreateAnnotationReview struct {
	Approved     *bool  `json:"approved" binding:"required"`
	Reviewer     string `json:"reviewer,omitempty"`
	ReviewerType string `json:"reviewer_type,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Correction   string `json:"correction,omitempty"`
}

// V1ActionEvent is one observation, action, result triple in an episode.
type V1ActionEvent struct {
	ID          string                   `json:"id,omitempty"`
	State       V1EnvState               `json:"state"`
	Action      V1Action                 `json:"action"`
	Result      any                      `json:"result,omitempty"`
	EndState    *V1EnvState              `json:"end_state,omitempty"`
	Tool        V1ToolRef                `json:"tool"`
	Namespace   string                   `json:"namespace,omitempty"`
	Prompt      string                   `json:"prompt,omitempty"`
	Metadata    map[string]any           `json:"metadata,omitempty"`
	OwnerID     string                   `json:"owner_id,omitempty"`
	Model       string                   `json:"model,omitempty"`
	AgentID     string                   `json:"agent_id,omitempty"`
	Hidden      bool                     `json:"hidden,omitempty"`
	Reviews     []V1Review               `json:"reviews,omitempty"`
	Reviewables []V1AnnotationReviewable `json:"reviewables,omitempty"`
	EventOrder  int64                    `json:"event_order,omitempty"`
	Created     float64                  `json:"created,omitempty"`
}

// V1ActionEvents wraps an ordered action event list.
type V1ActionEvents struct {
	Events []V1ActionEvent `json:"events"`
}

// V1Episode is the ordered log of action events for one task.
type V1Episode struct {
	ID      string          `json:"id"`
	Actions []V1ActionEvent `json:"actions"`
	Created float64         `json:"created,omitempty"`
}

// V1Task is the wire projection of a task. The version hash is computed
// over the canonical JSON of this shape with version and auth_token cleared.
type V1Task struct {
	ID                 string                `json:"id,omitempty"`
	Description        string                `json:"description"`
	MaxSteps           int                   `json:"max_steps,omitempty"`
	Device             *V1Device             `json:"device,omitempty"`
	DeviceType         *V1DeviceType         `json:"device_type,omitempty"`
	ExpectSchema       map[string]any        `json:"expect_schema,omitempty"`
	Threads            []V1RoleThread        `json:"threads,omitempty"`
	Prompts            []string              `json:"prompts,omitempty"`
	Status             string                `json:"status,omitempty"`
	Created            float64               `json:"created,omitempty"`
	Started            float64               `json:"started,omitempty"`
	Completed          float64               `json:"completed,omitempty"`
	AssignedTo         string                `json:"assigned_to,omitempty"`
	AssignedType       string                `json:"assigned_type,omitempty"`
	Reviews            []V1Review            `json:"reviews,omitempty"`
	ReviewRequirements []V1ReviewRequirement `json:"review_requirements,omitempty"`
	Error              string                `json:"error,omitempty"`
	Output             string                `json:"output,omitempty"`
	Parameters         map[string]any        `json:"parameters,omitempty"`
	Version            string                `json:"version,omitempty"`
	Remote             string                `json:"remote,omitempty"`
	OwnerID            string                `json:"owner_id,omitempty"`
	ParentID           string                `json:"parent_id,omitempty"`
	Project            string                `json:"project,omitempty"`
	Skill              string                `json:"skill,omitempty"`
	Tags               []string              `json:"tags,omitempty"`
	Labels             map[string]string     `json:"labels,omitempty"`
	EpisodeID          string                `json:"episode_id,omitempty"`
	AuthToken          string                `json:"auth_token,omitempty"`
}

// V1Tasks wraps a task list.
type V1Tasks struct {
	Tasks []V1Task `json:"tasks"`
}

// V1TaskUpdate is the explicit task patch; only fields present are applied.
// SetLabels merges into the label map at key level.
type V1TaskUpdate struct {
	Description  *string           `json:"description,omitempty"`
	Status       *string           `json:"status,omitempty"`
	MaxSteps     *int              `json:"max_steps,omitempty"`
	Error        *string           `json:"error,omitempty"`
	Output       *string           `json:"output,omitempty"`
	AssignedTo   *string           `json:"assigned_to,omitempty"`
	AssignedType *string           `json:"assigned_type,omitempty"`
	Started      *float64          `json:"started,omitempty"`
	Completed    *float64          `json:"completed,omitempty"`
	Project      *string           `json:"project,omitempty"`
	Skill        *string           `json:"skill,omitempty"`
	Version      *string           `json:"version,omitempty"`
	SetLabels    map[string]string `json:"set_labels,omitempty"`
}

// V1SearchTask filters a task search. Owners narrows the visible owner set
// and must stay inside the principal's resolved owners.
type V1SearchTask struct {
	TaskID       string            `json:"task_id,omitempty"`
	ParentID     string            `json:"parent_id,omitempty"`
	Status       string            `json:"status,omitempty"`
	AssignedTo   string            `json:"assigned_to,omitempty"`
	AssignedType string            `json:"assigned_type,omitempty"`
	Device       string            `json:"device,omitempty"`
	DeviceType   string            `json:"device_type,omitempty"`
	Skill        string            `json:"skill,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	Owners       []string          `json:"owners,omitempty"`
}

// V1PostMessage posts a message to a task thread.
type V1PostMessage struct {
	Role   string   `json:"role" binding:"required"`
	Msg    string   `json:"msg" binding:"required"`
	Images []string `json:"images,omitempty"`
	Thread string   `json:"thread,omitempty"`
}

// V1AddThread creates a thread on a task.
type V1AddThread struct {
	Name     string         `json:"name,omitempty"`
	Public   bool           `json:"public,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	ID       string         `json:"id,omitempty"`
}

// V1RemoveThread removes a thread from a task.
type V1RemoveThread struct {
	ID string `json:"id" binding:"required"`
}

// V1TaskTemplate is a task shape without runtime state.
type V1TaskTemplate struct {
	ID           string            `json:"id,omitempty"`
	Description  string            `json:"description"`
	MaxSteps     int               `json:"max_steps,omitempty"`
	Device       *V1Device         `json:"device,omitempty"`
	DeviceType   *V1DeviceType     `json:"device_type,omitempty"`
	ExpectSchema map[string]any    `json:"expect_schema,omitempty"`
	Parameters   map[string]any    `json:"parameters,omitempty"`
	OwnerID      string            `json:"owner_id,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	Created      float64           `json:"created,omitempty"`
}

// V1Benchmark is a named bundle of task templates.
type V1Benchmark struct {
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	Tasks       []V1TaskTemplate  `json:"tasks"`
	OwnerID     string            `json:"owner_id,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Public      bool              `json:"public,omitempty"`
	Created     float64           `json:"created,omitempty"`
}

// V1Benchmarks wraps a benchmark list.
type V1Benchmarks struct {
	Benchmarks []V1Benchmark `json:"benchmarks"`
}

// V1BenchmarkEval requests an eval materialised from a benchmark.
type V1BenchmarkEval struct {
	AssignedTo   string `json:"assigned_to,omitempty"`
	AssignedType string `json:"assigned_type,omitempty"`
}

// V1Eval is a materialised run of a benchmark.
type V1Eval struct {
	ID           string       `json:"id,omitempty"`
	Benchmark    *V1Benchmark `json:"benchmark,omitempty"`
	Tasks        []V1Task     `json:"tasks"`
	AssignedTo   string       `json:"assigned_to,omitempty"`
	AssignedType string       `json:"assigned_type,omitempty"`
	OwnerID      string       `json:"owner_id,omitempty"`
}

// V1Evals wraps an eval list.
type V1Evals struct {
	Evals []V1Eval `json:"evals"`
}

// V1Flag is a typed record needing human attention.
type V1Flag struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type" binding:"required"`
	Flag    map[string]any `json:"flag"`
	Result  map[string]any `json:"result,omitempty"`
	Created float64        `json:"created,omitempty"`
}

// V1BoundingBox is a rectangle in image coordinates.
type V1BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// V1BoundingBoxFlag asks a human to verify a bounding box on an image.
type V1BoundingBoxFlag struct {
	Img    string        `json:"img"`
	Target string        `json:"target"`
	BBox   V1BoundingBox `json:"bbox"`
}

// V1OrgRole is the principal's role inside one organisation.
type V1OrgRole struct {
	Role string `json:"role"`
}

// V1UserProfile is the verified principal attached to every request.
type V1UserProfile struct {
	Email         string               `json:"email"`
	DisplayName   string               `json:"display_name,omitempty"`
	Handle        string               `json:"handle,omitempty"`
	Picture       string               `json:"picture,omitempty"`
	Organizations map[string]V1OrgRole `json:"organizations,omitempty"`
	Token         string               `json:"token,omitempty"`
	Created       int64                `json:"created,omitempty"`
	Updated       int64                `json:"updated,omitempty"`
}
