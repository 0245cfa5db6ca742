package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// Obstacle is a circular body cut out of the domain by the embedded boundary
type Obstacle struct {
	Center [2]float64 `json:"Center"`
	Radius float64    `json:"Radius"`
}

// Pulse is the Gaussian initial condition
type Pulse struct {
	Center [2]float64 `json:"Center"`
	Width  float64    `json:"Width"`
}

// Parameters obtained from the YAML input file of the two level advection driver
type AMRParameters struct {
	Title                     string     `json:"Title"`
	CoarseCells               [2]int     `json:"CoarseCells"`               // nx, ny on the coarse level
	DomainLength              []float64  `json:"DomainLength"`              // physical extent, defaults to the unit square
	FineBoxes                 [][4]int   `json:"FineBoxes"`                 // ilo, jlo, ihi, jhi in coarse cells
	RefRatio                  int        `json:"RefRatio"`
	MaxGridSize               int        `json:"MaxGridSize"`
	Velocity                  [2]float64 `json:"Velocity"`
	CFL                       float64    `json:"CFL"`
	FinalTime                 float64    `json:"FinalTime"`
	MaxSteps                  int        `json:"MaxSteps"`
	NumRanks                  int        `json:"NumRanks"`
	Periodic                  [2]bool    `json:"Periodic"`
	InitialPulse              Pulse      `json:"Pulse"`
	Circle                    *Obstacle  `json:"Obstacle"`
	NoReflux                  bool       `json:"NoReflux"`
	Executor                  string     `json:"Executor"`                  // serial, tiled or batched
	TileSize                  [2]int     `json:"TileSize"`
	ParallelDegree            int        `json:"ParallelDegree"`
	ReredistributionThreshold float64    `json:"ReredistributionThreshold"` // fine redistribution deficits below this stay on the fine level
	LogFrequency              int        `json:"LogFrequency"`
}

func NewAMRParameters() *AMRParameters {
	return &AMRParameters{
		Title:                     "Two level advection",
		CoarseCells:               [2]int{32, 32},
		DomainLength:              []float64{1, 1},
		RefRatio:                  2,
		MaxGridSize:               16,
		Velocity:                  [2]float64{1, 0.5},
		CFL:                       0.5,
		FinalTime:                 0.25,
		NumRanks:                  1,
		Periodic:                  [2]bool{true, true},
		InitialPulse:              Pulse{Center: [2]float64{0.3, 0.5}, Width: 0.08},
		Executor:                  "serial",
		ReredistributionThreshold: 1.e-14,
		LogFrequency:              10,
	}
}

// Parse overlays the YAML document on the current values and checks the result
func (ip *AMRParameters) Parse(data []byte) (err error) {
	if err = yaml.Unmarshal(data, ip); err != nil {
		return fmt.Errorf("parsing input parameters: %w", err)
	}
	return ip.Validate()
}

func (ip *AMRParameters) Validate() error {
	switch {
	case ip.CoarseCells[0] < 1 || ip.CoarseCells[1] < 1:
		return fmt.Errorf("invalid coarse cell count %v", ip.CoarseCells)
	case len(ip.DomainLength) != 2 || ip.DomainLength[0] <= 0 || ip.DomainLength[1] <= 0:
		return fmt.Errorf("domain length needs two positive values, have %v", ip.DomainLength)
	case ip.RefRatio < 1:
		return fmt.Errorf("invalid refinement ratio %d", ip.RefRatio)
	case ip.MaxGridSize < 1:
		return fmt.Errorf("invalid max grid size %d", ip.MaxGridSize)
	case ip.CFL <= 0 || ip.CFL > 1:
		return fmt.Errorf("CFL %8.5f is outside (0,1]", ip.CFL)
	case ip.FinalTime <= 0 && ip.MaxSteps <= 0:
		return fmt.Errorf("need a positive FinalTime or MaxSteps")
	case ip.NumRanks < 1:
		return fmt.Errorf("invalid number of ranks %d", ip.NumRanks)
	}
	for _, fb := range ip.FineBoxes {
		if fb[0] > fb[2] || fb[1] > fb[3] || fb[0] < 0 || fb[1] < 0 ||
			fb[2] >= ip.CoarseCells[0] || fb[3] >= ip.CoarseCells[1] {
			return fmt.Errorf("fine box %v is empty or outside the %v coarse domain", fb, ip.CoarseCells)
		}
	}
	if ip.Circle != nil && ip.Circle.Radius <= 0 {
		return fmt.Errorf("obstacle radius %8.5f must be positive", ip.Circle.Radius)
	}
	switch ip.Executor {
	case "", "serial", "tiled", "batched":
	default:
		return fmt.Errorf("unknown executor %q", ip.Executor)
	}
	return nil
}

func (ip *AMRParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("%v\t\t\t= Coarse Cells\n", ip.CoarseCells)
	fmt.Printf("%v\t\t\t= Domain Length\n", ip.DomainLength)
	fmt.Printf("[%d]\t\t\t\t= Refinement Ratio\n", ip.RefRatio)
	fmt.Printf("[%d]\t\t\t\t= Max Grid Size\n", ip.MaxGridSize)
	fmt.Printf("%v\t\t\t= Velocity\n", ip.Velocity)
	fmt.Printf("%8.5f\t\t= CFL\n", ip.CFL)
	fmt.Printf("%8.5f\t\t= FinalTime\n", ip.FinalTime)
	fmt.Printf("[%d]\t\t\t\t= Max Steps\n", ip.MaxSteps)
	fmt.Printf("[%d]\t\t\t\t= Ranks\n", ip.NumRanks)
	fmt.Printf("%v\t\t= Periodic\n", ip.Periodic)
	fmt.Printf("[%s]\t\t\t= Executor\n", ip.Executor)
	fmt.Printf("%v\t\t\t= Reflux\n", !ip.NoReflux)
	for i, fb := range ip.FineBoxes {
		fmt.Printf("FineBoxes[%d] = %v\n", i, fb)
	}
	if ip.Circle != nil {
		fmt.Printf("Obstacle = %+v, threshold = %g\n", *ip.Circle, ip.ReredistributionThreshold)
	}
}
