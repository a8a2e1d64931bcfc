// Package query extracts and validates query parameters.
package query

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cyverse/compute-qms/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Define a single validator to do all of the validations for us.
var v = validator.New()

// ValidatedQueryParam extracts a query parameter and validates it.
func ValidatedQueryParam(ctx echo.Context, name, validationTag string) (string, error) {
	value := ctx.QueryParam(name)

	if err := v.Var(value, validationTag); err != nil {
		return "", fmt.Errorf("invalid query parameter: %s", name)
	}

	return value, nil
}

// ValidateBooleanQueryParam extracts a Boolean query parameter and validates it. The parameter is required if no
// default value is provided.
func ValidateBooleanQueryParam(ctx echo.Context, name string, defaultValue *bool) (bool, error) {
	value := ctx.QueryParam(name)

	if value == "" {
		if defaultValue == nil {
			return false, fmt.Errorf("missing required query parameter: %s", name)
		}
		return *defaultValue, nil
	}

	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.Wrapf(err, "invalid query parameter: %s", name)
	}
	return result, nil
}

// ValidateIntQueryParam extracts an integer query parameter and validates it. The parameter is required if no default
// value is provided.
func ValidateIntQueryParam(ctx echo.Context, name string, defaultValue *int, checks ...string) (int, error) {
	errMsg := fmt.Sprintf("invalid query parameter: %s", name)
	value := ctx.QueryParam(name)

	if value == "" {
		if defaultValue == nil {
			return 0, fmt.Errorf("missing required query parameter: %s", name)
		}
		return *defaultValue, nil
	}

	parsed, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return 0, errors.Wrap(err, errMsg)
	}
	result := int(parsed)

	for _, check := range checks {
		if err = v.Var(result, check); err != nil {
			return 0, errors.Wrap(err, errMsg)
		}
	}

	return result, nil
}

// ValidateEnumQueryParam extracts the value of an enumeration query parameter. The value will always be converted to
// lower case before validating and returning it.
func ValidateEnumQueryParam(ctx echo.Context, name string, vals []string, defaultValue *string) (string, error) {
	value := strings.ToLower(ctx.QueryParam(name))

	if value == "" {
		if defaultValue == nil {
			return "", fmt.Errorf("missing required query parameter: %s", name)
		}
		return *defaultValue, nil
	}

	if !slices.Contains(vals, value) {
		return "", fmt.Errorf("invalid query parameter: %s; valid values: %s", name, strings.Join(vals, ", "))
	}
	return value, nil
}

// ValidateSortOrder extracts the value of the sort direction query parameter and validates it.
func ValidateSortOrder(ctx echo.Context) (string, error) {
	defaultSortOrder := "asc"
	return ValidateEnumQueryParam(ctx, "sort-dir", []string{"asc", "desc"}, &defaultSortOrder)
}

// ListingParams extracts the paging, sorting and search parameters shared by listing endpoints.
func ListingParams(ctx echo.Context, sortFields []string) (*store.ListingParams, error) {
	var err error
	params := &store.ListingParams{}

	defaultOffset := 0
	if params.Offset, err = ValidateIntQueryParam(ctx, "offset", &defaultOffset, "gte=0"); err != nil {
		return nil, err
	}

	defaultLimit := 50
	if params.Limit, err = ValidateIntQueryParam(ctx, "limit", &defaultLimit, "gt=0", "lte=1000"); err != nil {
		return nil, err
	}

	defaultSortField := sortFields[0]
	if params.SortField, err = ValidateEnumQueryParam(ctx, "sort-field", sortFields, &defaultSortField); err != nil {
		return nil, err
	}

	if params.SortDir, err = ValidateSortOrder(ctx); err != nil {
		return nil, err
	}

	if params.Search, err = ValidatedQueryParam(ctx, "search", "omitempty,max=255"); err != nil {
		return nil, err
	}

	return params, nil
}
