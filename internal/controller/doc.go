// Package controller runs the AquaLogic decode pipeline.
//
// A Controller reads raw frames from a byte source, verifies and decodes
// them, and applies the results to a state.Store. It is the store's only
// writer. Frames that fail verification or decoding are counted in Stats
// and logged; they never stop the pipeline.
//
//	c := controller.New(controller.Config{Source: addr})
//	go func() {
//	    if err := c.Run(ctx, conn); err != nil {
//	        logging.Error("decoder stopped", zap.Error(err))
//	    }
//	}()
//	snap := c.Store().Snapshot()
package controller
