// Package paging provides offset pagination with sorting for list endpoints.
//
// Handlers bind Params from the query string:
//
//	var params paging.Params
//	_ = c.ShouldBindQuery(&params)
//
// Services normalise them against the columns they allow sorting on and
// run the query through Paginate:
//
//	params = paging.NormalizeParams(params, "created_at", "updated_at")
//	result, err := paging.Paginate(params, func(offset, limit int) ([]*Item, int, error) {
//	    return repo.List(ctx, filter, params.Sort, params.Order, offset, limit)
//	})
//
// The response carries the items, the total row count and whether another
// page exists:
//
//	{
//	  "items": [...],
//	  "total": 42,
//	  "page": 1,
//	  "limit": 10,
//	  "has_next": true
//	}
package paging
