// Package resp provides standardized HTTP response helpers.
//
// Successful responses write the payload directly:
//
//	resp.Success(w, approval)
//	resp.WithStatusCode(w, http.StatusCreated, secret)
//
// Failures use the Exception envelope:
//
//	{
//	  "code": -301,
//	  "message": "Active approval for WORKSPACE with id W already exists",
//	  "errors": {...}
//	}
//
// Service errors are mapped through their ecode:
//
//	if err != nil {
//	    resp.Error(c.Writer, err)
//	    return
//	}
package resp
