package tools

// Member record fields accepted for sorting by [ListMembers].
var MemberSortColumns = []string{"id", "name", "email", "role", "status", "created_at"}

// DefaultSpecs returns the built-in tool catalogue.
func DefaultSpecs() []ToolSpec {
	str := func(required bool, desc string) ParamSpec {
		return ParamSpec{Type: TypeString, Required: required, Description: desc}
	}
	return []ToolSpec{
		{
			Name:        Chat,
			Description: "Free-form conversation with a general-purpose assistant.",
			Params:      map[string]ParamSpec{"prompt": str(true, "the user's message")},
		},
		{
			Name:        GenerateImage,
			Description: "Generate an image from a text prompt.",
			Params:      map[string]ParamSpec{"prompt": str(true, "what the image should show")},
		},
		{
			Name:        ListMembers,
			Description: "List members, optionally filtered by role or a name/email search.",
			Params: map[string]ParamSpec{
				"role":   str(false, "exact role to match"),
				"search": str(false, "case-insensitive substring of name or email"),
				"limit":  {Type: TypeInteger, Default: 10, Description: "page size"},
				"offset": {Type: TypeInteger, Default: 0, Description: "number of records to skip"},
				"sort":   {Type: TypeString, Default: "created_at", Description: "column to sort by"},
				"order":  {Type: TypeString, Default: "desc", Description: "asc or desc"},
			},
			Order: []string{"role", "search", "limit", "offset", "sort", "order"},
		},
		{
			Name:        GetMember,
			Description: "Fetch a single member by id.",
			Params:      map[string]ParamSpec{"member_id": str(true, "member id")},
		},
		{
			Name:        CreateMember,
			Description: "Create a new member.",
			Params: map[string]ParamSpec{
				"name":   str(true, "full name"),
				"email":  str(true, "email address"),
				"role":   {Type: TypeString, Default: "user"},
				"status": {Type: TypeString, Default: "active"},
			},
			Order: []string{"name", "email", "role", "status"},
		},
		{
			Name:        UpdateMember,
			Description: "Update fields of an existing member.",
			Params: map[string]ParamSpec{
				"member_id": str(true, "member id"),
				"name":      str(false, ""),
				"email":     str(false, ""),
				"role":      str(false, ""),
				"status":    str(false, ""),
			},
			Order: []string{"member_id", "name", "email", "role", "status"},
		},
		{
			Name:        DeleteMember,
			Description: "Delete a member and return the deleted record.",
			Params:      map[string]ParamSpec{"member_id": str(true, "member id")},
		},
		{
			Name:        Speak,
			Description: "Synthesize speech from text.",
			Params: map[string]ParamSpec{
				"text":  str(true, "text to speak"),
				"voice": {Type: TypeString, Default: "nova"},
				"tone":  {Type: TypeString, Default: "cheerful"},
			},
			Order: []string{"text", "voice", "tone"},
		},
		{
			Name:        CaptureImage,
			Description: "Ask the client to take a photo with its camera.",
		},
		{
			Name:        DescribeImage,
			Description: "Describe the most recently captured photo.",
			Params:      map[string]ParamSpec{"image_url": str(false, "filled in from the captured photo")},
		},
	}
}

// DefaultRules returns the built-in disambiguation rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Phrases:   []string{"describe this image", "what is in the image", "analyze the photo"},
			Tool:      DescribeImage,
			Condition: "an image has already been captured",
		},
		{
			Phrases: []string{"open the camera", "take a picture", "capture photo"},
			Tool:    CaptureImage,
		},
	}
}

// Default returns a Registry with the built-in catalogue and rules, falling
// back to [Chat].
func Default() *Registry {
	r, err := New(DefaultSpecs(), Chat, DefaultRules()...)
	if err != nil {
		panic("tools: invalid built-in catalogue: " + err.Error())
	}
	return r
}
