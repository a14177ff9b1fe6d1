package connect

// Request types the platform emits for asset fulfillment.
const (
	RequestTypePurchase = "purchase"
	RequestTypeChange   = "change"
	RequestTypeCancel   = "cancel"
	RequestTypeSuspend  = "suspend"
	RequestTypeResume   = "resume"
)

// Request statuses.
const (
	StatusPending   = "pending"
	StatusInquiring = "inquiring"
	StatusApproved  = "approved"
	StatusFailed    = "failed"
	StatusDraft     = "draft"
)

// Template scopes and types.
const (
	TemplateScopeAsset      = "asset"
	TemplateTypeFulfillment = "fulfillment"
	TemplateTypeInquire     = "inquire"
)

// Request is a fulfillment request as returned by the platform.
type Request struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Created string `json:"created,omitempty"`
	Updated string `json:"updated,omitempty"`
	Asset   Asset  `json:"asset"`
}

// ProductID returns the id of the product the request's asset belongs to.
func (r *Request) ProductID() string {
	return r.Asset.Product.ID
}

// Asset is the subscription a request acts on.
type Asset struct {
	ID      string  `json:"id"`
	Status  string  `json:"status,omitempty"`
	Product Product `json:"product"`
	Params  []Param `json:"params,omitempty"`
}

// Product identifies the asset's product.
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Param is a parameter value on a request.
// Scalar types carry Value; address, checkbox, phone and object carry
// StructuredValue.
type Param struct {
	ID              string         `json:"id"`
	Name            string         `json:"name,omitempty"`
	Type            string         `json:"type,omitempty"`
	Value           string         `json:"value,omitempty"`
	StructuredValue map[string]any `json:"structured_value,omitempty"`
	ValueError      string         `json:"value_error,omitempty"`
	Constraints     *Constraints   `json:"constraints,omitempty"`
}

// HasValue reports whether the parameter already holds a value of either shape.
func (p Param) HasValue() bool {
	return p.Value != "" || len(p.StructuredValue) > 0
}

// Constraints carries the parameter's declared validation rules.
type Constraints struct {
	Required bool     `json:"required,omitempty"`
	Hidden   bool     `json:"hidden,omitempty"`
	Unique   bool     `json:"unique,omitempty"`
	Choices  []Choice `json:"choices,omitempty"`
}

// Choice is one option of a choice or checkbox parameter.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// Template is a product template (fulfillment or inquire).
type Template struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
	Scope string `json:"scope,omitempty"`
}

// ProductParameter is a parameter definition on a product.
type ProductParameter struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Title       string       `json:"title,omitempty"`
	Type        string       `json:"type"`
	Scope       string       `json:"scope,omitempty"`
	Phase       string       `json:"phase,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`
}

// AsParam returns the definition as an empty request parameter.
func (pp ProductParameter) AsParam() Param {
	return Param{
		ID:          pp.Name,
		Name:        pp.Name,
		Type:        pp.Type,
		Constraints: pp.Constraints,
	}
}
